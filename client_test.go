package credgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/layer-3/credgate/adapters/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = "0x1111111111111111111111111111111111111111"

// fakeBackend issues nonces, accepts "sig:<nonce>" signatures and hands out
// numbered session tokens.
type fakeBackend struct {
	mu sync.Mutex

	nonces      int
	calls       int
	tokens      map[string]bool
	issued      int
	lastNonce   string
	noNonceID   bool
	rejectSigs  bool
	rotate      bool
	status      int
	seenHeaders []http.Header
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tokens: make(map[string]bool), status: http.StatusOK}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.URL.Path == PathNonce {
		b.nonces++
		b.lastNonce = fmt.Sprintf("nonce-%d", b.nonces)
		if b.noNonceID {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": b.lastNonce})
		return
	}

	b.calls++
	b.seenHeaders = append(b.seenHeaders, r.Header.Clone())

	if token := r.Header.Get(HeaderSessionToken); token != "" {
		if !b.tokens[token] {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid or expired session"}`))
			return
		}
		if b.rotate {
			w.Header().Set(HeaderSessionToken, b.newToken())
		}
	} else {
		sig := r.Header.Get(HeaderSignature)
		if b.rejectSigs || sig != "sig:"+b.lastNonce {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid signature"}`))
			return
		}
		b.lastNonce = ""
		w.Header().Set(HeaderSessionToken, b.newToken())
	}

	w.WriteHeader(b.status)
	if b.status >= 300 {
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
}

func (b *fakeBackend) newToken() string {
	b.issued++
	token := fmt.Sprintf("token-%d", b.issued)
	b.tokens[token] = true
	return token
}

type countingSigner struct {
	calls int
	err   error
}

func (s *countingSigner) SignNonce(ctx context.Context, identity, nonce string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "sig:" + nonce, nil
}

func newTestClient(t *testing.T, backend *fakeBackend) (*Client, *SessionCache, *countingSigner) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cache := NewSessionCache(store.NewMemoryStore())
	signer := &countingSigner{}
	return NewClient(srv.URL, testIdentity, signer, cache, WithHTTPClient(srv.Client())), cache, signer
}

func TestCallWithoutTokenSignsOnce(t *testing.T) {
	backend := newFakeBackend()
	client, cache, signer := newTestClient(t, backend)
	ctx := context.Background()

	var out map[string]string
	require.NoError(t, client.Call(ctx, http.MethodGet, "/requests/student_wallet", nil, &out))

	assert.Equal(t, "/requests/student_wallet", out["path"])
	assert.Equal(t, 1, backend.nonces)
	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, "sig:nonce-1", backend.seenHeaders[0].Get(HeaderSignature))
	assert.Empty(t, backend.seenHeaders[0].Get(HeaderSessionToken))
	assert.Equal(t, testIdentity, backend.seenHeaders[0].Get(HeaderWalletAddress))

	token, ok := cache.Get(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "token-1", token)
}

func TestCallWithCachedTokenSkipsSigning(t *testing.T) {
	backend := newFakeBackend()
	client, cache, signer := newTestClient(t, backend)
	ctx := context.Background()

	backend.tokens["token-valid"] = true
	require.NoError(t, cache.Set(ctx, testIdentity, "token-valid"))

	require.NoError(t, client.Call(ctx, http.MethodGet, "/requests/recipient_wallet", nil, nil))
	require.NoError(t, client.Call(ctx, http.MethodGet, "/requests/recipient_wallet", nil, nil))

	assert.Equal(t, 0, backend.nonces)
	assert.Equal(t, 0, signer.calls)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, "token-valid", backend.seenHeaders[1].Get(HeaderSessionToken))
}

func TestCallRetriesOnceAfterRejectedToken(t *testing.T) {
	backend := newFakeBackend()
	client, cache, signer := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testIdentity, "token-stale"))

	var out map[string]string
	require.NoError(t, client.Call(ctx, http.MethodGet, "/requests/student_wallet/42", nil, &out))

	assert.Equal(t, "/requests/student_wallet/42", out["path"])
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, "token-stale", backend.seenHeaders[0].Get(HeaderSessionToken))
	assert.Empty(t, backend.seenHeaders[1].Get(HeaderSessionToken))
	assert.NotEmpty(t, backend.seenHeaders[1].Get(HeaderSignature))

	token, ok := cache.Get(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "token-1", token)
}

func TestCallFailsImmediatelyWhenSignatureRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.rejectSigs = true
	client, _, signer := newTestClient(t, backend)

	err := client.Call(context.Background(), http.MethodGet, "/requests/student_wallet", nil, nil)

	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "Invalid signature")
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 1, signer.calls)
}

func TestCallGivesUpAfterSingleRetry(t *testing.T) {
	backend := newFakeBackend()
	backend.rejectSigs = true
	client, cache, signer := newTestClient(t, backend)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testIdentity, "token-stale"))

	err := client.Call(ctx, http.MethodPost, "/requests/respond/42", map[string]string{"response": "reject"}, nil,
		WithIdempotencyKey("key-1"))

	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, 1, signer.calls)
	for _, h := range backend.seenHeaders {
		assert.Equal(t, "key-1", h.Get(HeaderIdempotencyKey))
	}

	_, ok := cache.Get(ctx, testIdentity)
	assert.False(t, ok, "rejected token must not survive")
}

func TestCallStoresRotatedToken(t *testing.T) {
	backend := newFakeBackend()
	backend.rotate = true
	client, cache, _ := newTestClient(t, backend)
	ctx := context.Background()

	backend.tokens["token-old"] = true
	require.NoError(t, cache.Set(ctx, testIdentity, "token-old"))

	require.NoError(t, client.Call(ctx, http.MethodGet, "/requests/student_wallet", nil, nil))

	token, ok := cache.Get(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "token-1", token)
}

func TestCallNonceUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.noNonceID = true
	client, _, signer := newTestClient(t, backend)

	err := client.Call(context.Background(), http.MethodGet, "/requests/student_wallet", nil, nil)

	require.ErrorIs(t, err, ErrNonceUnavailable)
	assert.Equal(t, 0, signer.calls)
	assert.Equal(t, 0, backend.calls)
}

func TestCallSigningRejected(t *testing.T) {
	backend := newFakeBackend()
	client, _, signer := newTestClient(t, backend)
	signer.err = errors.New("user denied message signature")

	err := client.Call(context.Background(), http.MethodGet, "/requests/student_wallet", nil, nil)

	require.ErrorIs(t, err, ErrSigningRejected)
	assert.Contains(t, err.Error(), "user denied")
	assert.Equal(t, 0, backend.calls)
}

func TestCallServerError(t *testing.T) {
	backend := newFakeBackend()
	backend.status = http.StatusInternalServerError
	client, cache, _ := newTestClient(t, backend)

	err := client.Call(context.Background(), http.MethodGet, "/requests/student_wallet", nil, nil)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.Status)
	assert.Equal(t, "boom", serverErr.Message)
	assert.NotErrorIs(t, err, ErrAuthFailed)

	// authentication itself succeeded, so the issued token is kept
	_, ok := cache.Get(context.Background(), testIdentity)
	assert.True(t, ok)
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cache := NewSessionCache(store.NewMemoryStore())
	require.NoError(t, cache.Set(context.Background(), testIdentity, "token"))
	client := NewClient(url, testIdentity, &countingSigner{}, cache)

	err := client.Call(context.Background(), http.MethodGet, "/requests/student_wallet", nil, nil)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestSessionCacheIsKeyedByIdentity(t *testing.T) {
	cache := NewSessionCache(store.NewMemoryStore())
	ctx := context.Background()
	other := "0x2222222222222222222222222222222222222222"

	require.NoError(t, cache.Set(ctx, testIdentity, "a"))
	require.NoError(t, cache.Set(ctx, other, "b"))

	token, ok := cache.Get(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "a", token)

	require.NoError(t, cache.Clear(ctx, other))
	_, ok = cache.Get(ctx, other)
	assert.False(t, ok)

	token, ok = cache.Get(ctx, testIdentity)
	require.True(t, ok)
	assert.Equal(t, "a", token)
}
