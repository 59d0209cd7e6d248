package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims of a session token; the subject is the wallet address
type SessionClaims struct {
	jwt.RegisteredClaims
}
