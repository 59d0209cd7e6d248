package core

import "time"

// Challenge is a single-use nonce issued to a wallet
type Challenge struct {
	Address   string    // Ethereum address of the wallet
	Nonce     string    // Random nonce to be signed
	IssuedAt  time.Time // When the nonce was issued
	ExpiresAt time.Time // When the nonce stops being accepted
}

// Session represents an authenticated wallet session
type Session struct {
	ID        string    // Unique session identifier
	Address   string    // Ethereum address of the wallet
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}
