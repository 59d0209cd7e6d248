package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/internal/eth"
	"github.com/layer-3/credgate/service"
)

const walletKey = "walletAddress"

// SessionMiddleware authenticates a wallet either by its session token or,
// without one, by a signature over the wallet's outstanding nonce. A
// signature login answers with a fresh Session-Token header.
func SessionMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetHeader(credgate.HeaderWalletAddress)
		if !eth.IsAddress(wallet) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid Wallet-Address header"})
			return
		}

		if token := c.GetHeader(credgate.HeaderSessionToken); token != "" {
			session, err := authService.ValidateSession(c.Request.Context(), wallet, token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
				return
			}
			c.Set(walletKey, session.Address)
			c.Next()
			return
		}

		signature := c.GetHeader(credgate.HeaderSignature)
		if signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Session-Token or Signature header"})
			return
		}

		token, session, err := authService.Login(c.Request.Context(), wallet, signature)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrNonceNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No outstanding nonce for wallet"})
			case errors.Is(err, core.ErrInvalidSignature), errors.Is(err, core.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			}
			return
		}

		c.Header(credgate.HeaderSessionToken, token)
		c.Set(walletKey, session.Address)
		c.Next()
	}
}

// walletFrom returns the address set by SessionMiddleware
func walletFrom(c *gin.Context) string {
	return c.GetString(walletKey)
}
