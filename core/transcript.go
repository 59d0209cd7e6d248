package core

import "math/big"

// Transcript references one issued credential's pinned metadata and file.
type Transcript struct {
	TranscriptID     string `json:"transcript_id"`
	IPFSURIMetadata  string `json:"ipfs_uri_metadata"`
	IPFSURIMediaHash string `json:"ipfs_uri_media_hash"`
	OwnerWallet      string `json:"owner_wallet"`
}

// Credential is a ledger-issued credential as seen through contract events.
type Credential struct {
	TokenID     *big.Int `json:"token_id"`
	Institution string   `json:"institution"`
	Student     string   `json:"student"`
	Title       string   `json:"title"`
	Revoked     bool     `json:"revoked"`
}

// CredentialMetadata is the JSON document pinned next to an issued file.
type CredentialMetadata struct {
	Title          string `json:"title"`
	Institution    string `json:"institution"`
	FileHash       string `json:"fileHash"`
	IPFSURI        string `json:"ipfsURI"`
	Signature      string `json:"signature"`
	DateOfIssuance string `json:"dateOfIssuance"`
}
