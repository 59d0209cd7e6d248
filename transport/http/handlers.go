package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/service"
)

// Handlers contains HTTP handlers for the auth, request and transcript endpoints
type Handlers struct {
	authService    *service.AuthService
	requestService *service.RequestService
}

// NewHandlers creates new handlers
func NewHandlers(authService *service.AuthService, requestService *service.RequestService) *Handlers {
	return &Handlers{
		authService:    authService,
		requestService: requestService,
	}
}

// writeError maps domain errors to status codes
func writeError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	errorMsg := "Internal server error"

	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidAddress), errors.Is(err, core.ErrInvalidWalletField):
		statusCode = http.StatusBadRequest
		errorMsg = err.Error()
	case errors.Is(err, core.ErrRequestNotFound), errors.Is(err, core.ErrTranscriptNotFound):
		statusCode = http.StatusNotFound
		errorMsg = err.Error()
	case errors.Is(err, core.ErrUnauthorizedTranscript):
		statusCode = http.StatusForbidden
		errorMsg = err.Error()
	case errors.Is(err, core.ErrRequestNotPending), errors.Is(err, core.ErrTranscriptExists):
		statusCode = http.StatusConflict
		errorMsg = err.Error()
	case errors.Is(err, core.ErrRequestExpired):
		statusCode = http.StatusGone
		errorMsg = err.Error()
	}

	c.JSON(statusCode, gin.H{"error": errorMsg})
}

// GenerateNonce issues a nonce for the Wallet-Address header
func (h *Handlers) GenerateNonce(c *gin.Context) {
	challenge, err := h.authService.GenerateNonce(c.Request.Context(), c.GetHeader(credgate.HeaderWalletAddress))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": challenge.Nonce})
}

// Logout drops the caller's session
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), walletFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// CreateRequest raises a request from the caller to a student
func (h *Handlers) CreateRequest(c *gin.Context) {
	var req struct {
		StudentWallet string `json:"student_wallet" binding:"required"`
		Description   string `json:"description" binding:"required"`
		ExpiryMinutes int    `json:"expiry_minutes"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	request, err := h.requestService.Create(c.Request.Context(), walletFrom(c), req.StudentWallet, req.Description, req.ExpiryMinutes)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Request created successfully", "request": request})
}

// ListRequests lists the caller's requests by wallet column
func (h *Handlers) ListRequests(c *gin.Context) {
	field, err := core.ParseWalletField(c.Param("wallet_type"))
	if err != nil {
		writeError(c, err)
		return
	}

	requests, err := h.requestService.List(c.Request.Context(), field, walletFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRequest returns one request with its outcome
func (h *Handlers) GetRequest(c *gin.Context) {
	field, err := core.ParseWalletField(c.Param("wallet_type"))
	if err != nil {
		writeError(c, err)
		return
	}

	detail, err := h.requestService.Get(c.Request.Context(), c.Param("request_id"), field, walletFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// RespondRequest applies the caller's decision to a request addressed to them
func (h *Handlers) RespondRequest(c *gin.Context) {
	var req struct {
		Response       string   `json:"response" binding:"required"`
		TranscriptList []string `json:"transcript_list"`
		Reason         string   `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	decision := core.Decision{
		Verdict:       core.Verdict(strings.ToLower(strings.TrimSpace(req.Response))),
		TranscriptIDs: req.TranscriptList,
		Reason:        strings.TrimSpace(req.Reason),
	}
	if decision.Verdict == core.Reject {
		decision.TranscriptIDs = nil
	}

	detail, err := h.requestService.Respond(
		c.Request.Context(),
		walletFrom(c),
		c.Param("request_id"),
		decision,
		c.GetHeader(credgate.HeaderIdempotencyKey),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Response recorded", "request": detail})
}

// AddTranscript registers a pinned transcript
func (h *Handlers) AddTranscript(c *gin.Context) {
	var req core.Transcript

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	transcript, err := h.requestService.AddTranscript(c.Request.Context(), walletFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Transcript created successfully", "transcript": transcript})
}

// GetTranscripts lists transcripts the caller owns or was granted
func (h *Handlers) GetTranscripts(c *gin.Context) {
	ids, err := h.requestService.GrantedTranscripts(c.Request.Context(), walletFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Approved transcripts retrieved successfully", "transcripts": ids})
}

// CheckAccess answers 200 when the caller may open the file at ?uri= and 403 otherwise
func (h *Handlers) CheckAccess(c *gin.Context) {
	uri := strings.TrimSpace(c.Query("uri"))
	if uri == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}

	ok, err := h.requestService.CheckAccess(c.Request.Context(), walletFrom(c), uri)
	if err != nil {
		writeError(c, err)
		return
	}

	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Access granted"})
}
