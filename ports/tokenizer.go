package ports

import "github.com/layer-3/credgate/core"

// Tokenizer converts between sessions and opaque bearer tokens
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)

	// VerifySignature checks a wallet signature over the challenge nonce
	VerifySignature(challenge *core.Challenge, signature string, address string) error
}
