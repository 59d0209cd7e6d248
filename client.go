package credgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	// maxAttempts bounds a call to one try plus one re-authenticated retry
	maxAttempts = 2

	maxResponseBytes = 4 << 20

	defaultTimeout = 30 * time.Second
)

// CallOption adds headers to a single call. Options are re-applied on the retry.
type CallOption func(h http.Header)

// WithHeader sets an extra request header
func WithHeader(key, value string) CallOption {
	return func(h http.Header) { h.Set(key, value) }
}

// WithIdempotencyKey marks a state-changing call so a replay is answered, not re-applied
func WithIdempotencyKey(key string) CallOption {
	return WithHeader(HeaderIdempotencyKey, key)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// WithLogger replaces the root logger
func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client issues authenticated calls on behalf of one identity
type Client struct {
	baseURL  string
	identity string
	http     HTTPDoer
	auth     *NonceAuthenticator
	cache    *SessionCache
	logger   log.Logger

	// signMu serialises signature logins so concurrent first calls share one session
	signMu sync.Mutex
}

// NewClient creates a client for identity against the backend at baseURL
func NewClient(baseURL, identity string, signer Signer, cache *SessionCache, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		http:     &http.Client{Timeout: defaultTimeout},
		cache:    cache,
		logger:   log.Root(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.auth = NewNonceAuthenticator(c.baseURL, c.http, signer)
	return c
}

// Identity returns the wallet address the client authenticates as
func (c *Client) Identity() string {
	return c.identity
}

// response is a fully read HTTP response
type response struct {
	status int
	header http.Header
	body   []byte
}

// Call sends body as JSON to path and decodes a 2xx reply into out (either may be nil).
//
// A cached session token is tried first. If the server answers 401 to it, the
// token is dropped, a fresh nonce is signed and the call is sent once more.
// A 401 to a signed call is final. Concurrent calls that find no token wait
// for one signature login and then share its session.
func (c *Client) Call(ctx context.Context, method, path string, body, out interface{}, opts ...CallOption) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	token, useToken := c.cache.Get(ctx, c.identity)
	for attempt := 1; ; attempt++ {
		headers := make(http.Header)
		for _, opt := range opts {
			opt(headers)
		}
		headers.Set(HeaderWalletAddress, c.identity)

		var (
			resp *response
			err  error
		)
		if useToken {
			headers.Set(HeaderSessionToken, token)
			resp, err = c.send(ctx, method, path, payload, headers)
		} else {
			resp, token, useToken, err = c.sendSigned(ctx, method, path, payload, headers, token)
		}
		if err != nil {
			return err
		}

		if resp.status == http.StatusUnauthorized {
			if useToken {
				c.dropToken(ctx, token)
			}
			if useToken && attempt < maxAttempts {
				c.logger.Debug("Session token rejected, re-authenticating", "identity", c.identity, "path", path)
				useToken = false
				continue
			}
			return fmt.Errorf("%w: %s", ErrAuthFailed, errorMessage(resp.body))
		}

		if fresh := resp.header.Get(HeaderSessionToken); useToken && fresh != "" && fresh != token {
			c.storeToken(ctx, fresh)
		}

		if resp.status < 200 || resp.status >= 300 {
			return serverError(resp.status, resp.body)
		}
		if out == nil || len(resp.body) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// sendSigned authenticates a call with a fresh signature while holding signMu.
// If another call stored a session other than stale while this one waited, the
// call is sent with that token instead and usedToken reports true.
func (c *Client) sendSigned(ctx context.Context, method, path string, payload []byte, headers http.Header, stale string) (resp *response, token string, usedToken bool, err error) {
	c.signMu.Lock()
	defer c.signMu.Unlock()

	if current, ok := c.cache.Get(ctx, c.identity); ok && current != stale {
		headers.Set(HeaderSessionToken, current)
		resp, err = c.send(ctx, method, path, payload, headers)
		return resp, current, true, err
	}

	signature, err := c.auth.ObtainSignature(ctx, c.identity)
	if err != nil {
		return nil, "", false, err
	}
	headers.Set(HeaderSignature, signature)
	if resp, err = c.send(ctx, method, path, payload, headers); err != nil {
		return nil, "", false, err
	}
	if resp.status != http.StatusUnauthorized {
		if fresh := resp.header.Get(HeaderSessionToken); fresh != "" {
			c.storeToken(ctx, fresh)
			token = fresh
		}
	}
	return resp, token, false, nil
}

// dropToken forgets token unless a newer session has already replaced it
func (c *Client) dropToken(ctx context.Context, token string) {
	c.signMu.Lock()
	defer c.signMu.Unlock()

	if current, ok := c.cache.Get(ctx, c.identity); ok && current != token {
		return
	}
	if err := c.cache.Clear(ctx, c.identity); err != nil {
		c.logger.Warn("Failed to clear session token", "identity", c.identity, "err", err)
	}
}

func (c *Client) storeToken(ctx context.Context, token string) {
	if err := c.cache.Set(ctx, c.identity, token); err != nil {
		c.logger.Warn("Failed to store session token", "identity", c.identity, "err", err)
	}
}

// Logout ends the server session and forgets the cached token
func (c *Client) Logout(ctx context.Context) error {
	err := c.Call(ctx, http.MethodPost, PathLogout, nil, nil)
	if clearErr := c.cache.Clear(ctx, c.identity); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, headers http.Header) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header = headers
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// errorMessage extracts {"error": "..."} from a body, falling back to the raw text
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func serverError(status int, body []byte) *ServerError {
	return &ServerError{Status: status, Message: errorMessage(body)}
}
