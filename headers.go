package credgate

// Wire names shared by the client and the backend.
const (
	HeaderWalletAddress  = "Wallet-Address"
	HeaderSignature      = "Signature"
	HeaderSessionToken   = "Session-Token"
	HeaderIdempotencyKey = "Idempotency-Key"

	PathNonce  = "/auth/generate-nonce"
	PathLogout = "/auth/logout"
)
