// Package pinning uploads credential files and metadata to an IPFS node's HTTP API.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
)

// maxFetchBytes bounds files pulled back for hashing
const maxFetchBytes = 64 << 20

var (
	ErrEmptyUpload     = errors.New("nothing to upload")
	ErrInvalidResponse = errors.New("invalid response from IPFS node")
	ErrInvalidFileHash = errors.New("file hash must be 0x followed by 64 hex characters")
)

var fileHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Upload is a pinned object
type Upload struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

// TextSigner signs a personal message with an institution's key
type TextSigner interface {
	Address() string
	SignText(text string) (string, error)
}

// IPFSClient talks to the add endpoint of an IPFS node and builds gateway URLs
type IPFSClient struct {
	apiURL     string
	gatewayURL string
	http       *http.Client
	now        func() time.Time
	logger     log.Logger
}

// NewIPFSClient creates a client for the node API at apiURL; uploads are
// addressed through gatewayURL.
func NewIPFSClient(apiURL, gatewayURL string) *IPFSClient {
	return &IPFSClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		http:       &http.Client{Timeout: 2 * time.Minute},
		now:        time.Now,
		logger:     log.Root().New("component", "ipfs"),
	}
}

// GatewayURL returns the gateway address of cid
func (c *IPFSClient) GatewayURL(cid string) string {
	return c.gatewayURL + "/ipfs/" + cid
}

// AddFile uploads content under name
func (c *IPFSClient) AddFile(ctx context.Context, name string, content io.Reader) (*Upload, error) {
	if content == nil {
		return nil, ErrEmptyUpload
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	n, err := io.Copy(part, content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyUpload
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/add", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var added struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil || added.Hash == "" {
		return nil, ErrInvalidResponse
	}

	c.logger.Info("Pinned file", "name", name, "cid", added.Hash, "bytes", n)
	return &Upload{CID: added.Hash, URL: c.GatewayURL(added.Hash)}, nil
}

// AddJSON uploads v as data.json
func (c *IPFSClient) AddJSON(ctx context.Context, v interface{}) (*Upload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return c.AddFile(ctx, "data.json", bytes.NewReader(data))
}

// FetchAndHash downloads url and returns the keccak256 of its bytes
func (c *IPFSClient) FetchAndHash(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return eth.Keccak256Hex(data), nil
}

// IssueMetadata signs fileHash as the institution and pins the credential
// metadata document that points at the file.
func (c *IPFSClient) IssueMetadata(ctx context.Context, signer TextSigner, title, fileURL, fileHash string) (*core.CredentialMetadata, *Upload, error) {
	if strings.TrimSpace(title) == "" {
		return nil, nil, &core.ValidationError{Field: "title", Message: "title is required"}
	}
	if !fileHashPattern.MatchString(fileHash) {
		return nil, nil, ErrInvalidFileHash
	}

	signature, err := signer.SignText(fileHash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign file hash: %w", err)
	}

	metadata := &core.CredentialMetadata{
		Title:          title,
		Institution:    signer.Address(),
		FileHash:       fileHash,
		IPFSURI:        fileURL,
		Signature:      signature,
		DateOfIssuance: c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}

	upload, err := c.AddJSON(ctx, metadata)
	if err != nil {
		return nil, nil, err
	}
	return metadata, upload, nil
}
