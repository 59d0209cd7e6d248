// Package credgate is the client side of the wallet-authenticated access
// request API. A Client signs a server nonce once, then rides the returned
// session token until the server rejects it.
package credgate

import (
	"context"
	"net/http"
)

// Signer is the signing capability of a wallet
type Signer interface {
	// SignNonce signs nonce with the key behind identity. A user declining the
	// prompt is reported as an error.
	SignNonce(ctx context.Context, identity string, nonce string) (string, error)
}

// SignerFunc adapts a function to the Signer interface
type SignerFunc func(ctx context.Context, identity string, nonce string) (string, error)

func (f SignerFunc) SignNonce(ctx context.Context, identity string, nonce string) (string, error) {
	return f(ctx, identity, nonce)
}

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
