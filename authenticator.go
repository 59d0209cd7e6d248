package credgate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// nonceResponse is the body of the nonce endpoint
type nonceResponse struct {
	ID string `json:"id"`
}

// NonceAuthenticator runs the challenge half of the protocol: fetch a nonce
// for an identity and have the identity's key sign it.
type NonceAuthenticator struct {
	baseURL string
	http    HTTPDoer
	signer  Signer
}

// NewNonceAuthenticator creates an authenticator against the backend at baseURL
func NewNonceAuthenticator(baseURL string, httpClient HTTPDoer, signer Signer) *NonceAuthenticator {
	return &NonceAuthenticator{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		signer:  signer,
	}
}

// ObtainSignature returns a signature good for exactly one authenticated call.
// Signatures are never cached.
func (a *NonceAuthenticator) ObtainSignature(ctx context.Context, identity string) (string, error) {
	nonce, err := a.FetchNonce(ctx, identity)
	if err != nil {
		return "", err
	}

	signature, err := a.signer.SignNonce(ctx, identity, nonce)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningRejected, err)
	}
	if signature == "" {
		return "", fmt.Errorf("%w: empty signature", ErrSigningRejected)
	}
	return signature, nil
}

// FetchNonce asks the backend for a fresh nonce for identity
func (a *NonceAuthenticator) FetchNonce(ctx context.Context, identity string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+PathNonce, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNonceUnavailable, err)
	}
	req.Header.Set(HeaderWalletAddress, identity)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", ErrNonceUnavailable, ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", ErrNonceUnavailable, ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w", ErrNonceUnavailable, serverError(resp.StatusCode, body))
	}

	var nonce nonceResponse
	if err := json.Unmarshal(body, &nonce); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrNonceUnavailable, err)
	}
	if nonce.ID == "" {
		return "", fmt.Errorf("%w: response carried no nonce id", ErrNonceUnavailable)
	}
	return nonce.ID, nil
}
