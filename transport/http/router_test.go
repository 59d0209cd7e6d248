package http

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/credgate"
	"github.com/layer-3/credgate/access"
	"github.com/layer-3/credgate/adapters/events"
	"github.com/layer-3/credgate/adapters/repository"
	"github.com/layer-3/credgate/adapters/store"
	"github.com/layer-3/credgate/adapters/tokenizer"
	"github.com/layer-3/credgate/adapters/wallet"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSigner struct {
	*wallet.KeySigner
	signs atomic.Int32
	delay time.Duration
}

func (s *countingSigner) SignNonce(ctx context.Context, identity, nonce string) (string, error) {
	s.signs.Add(1)
	time.Sleep(s.delay)
	return s.KeySigner.SignNonce(ctx, identity, nonce)
}

type party struct {
	signer   *countingSigner
	client   *credgate.Client
	workflow *access.Workflow
}

func newParty(t *testing.T, baseURL string) *party {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := &countingSigner{KeySigner: wallet.NewKeySigner(key)}
	client := credgate.NewClient(baseURL, signer.Address(), signer, credgate.NewSessionCache(store.NewMemoryStore()))
	return &party{signer: signer, client: client, workflow: access.NewWorkflow(client)}
}

func newServer(t *testing.T) (*httptest.Server, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	eventPub := events.NewWatermillPublisher(pubSub)

	kv := store.NewMemoryStore()
	authService := service.NewAuthService(tokenizer.NewJWTTokenizer(signKey), kv, eventPub)
	requestService := service.NewRequestService(repository.NewMemoryRepository(), kv, eventPub)

	srv := httptest.NewServer(SetupRouter(authService, requestService))
	t.Cleanup(srv.Close)
	return srv, authService
}

func TestRequestLifecycle(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	student := newParty(t, srv.URL)
	recipient := newParty(t, srv.URL)

	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, student.workflow.RegisterTranscript(ctx, core.Transcript{
			TranscriptID:     id,
			IPFSURIMetadata:  "ipfs://meta-" + id,
			IPFSURIMediaHash: "ipfs://media-" + id,
			OwnerWallet:      student.signer.Address(),
		}))
	}

	request, err := recipient.workflow.Raise(ctx, student.signer.Address(), "transcript review", 0)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, request.Status)

	sent, err := recipient.workflow.List(ctx, core.RoleSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	received, err := student.workflow.List(ctx, core.RoleReceived)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.True(t, received[0].Actionable())

	empty, err := student.workflow.List(ctx, core.RoleSent)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, student.workflow.Respond(ctx, received[0], core.Approve("t1")))

	detail, err := recipient.workflow.GetStatus(ctx, request.ID, core.RoleSent)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, detail.Status)
	assert.Equal(t, []core.GrantedTranscript{{RequestID: request.ID, TranscriptID: "t1"}}, detail.Transcripts)

	ok, err := recipient.workflow.CheckAccess(ctx, "ipfs://media-t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = recipient.workflow.CheckAccess(ctx, "ipfs://media-t2")
	require.NoError(t, err)
	assert.False(t, ok)

	granted, err := recipient.workflow.Transcripts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, granted)

	// A second decision on the same request is refused by the backend
	err = student.workflow.SubmitDecision(ctx, request.ID, core.Deny("too late"))
	var serverErr *credgate.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusConflict, serverErr.Status)

	// Each party signed exactly once; every later call rode the session token
	assert.EqualValues(t, 1, student.signer.signs.Load())
	assert.EqualValues(t, 1, recipient.signer.signs.Load())
}

func TestDenyFlow(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	student := newParty(t, srv.URL)
	recipient := newParty(t, srv.URL)

	request, err := recipient.workflow.Raise(ctx, student.signer.Address(), "background check", 60)
	require.NoError(t, err)

	require.NoError(t, student.workflow.SubmitDecision(ctx, request.ID, core.Deny("not relevant")))

	detail, err := student.workflow.GetStatus(ctx, request.ID, core.RoleReceived)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDenied, detail.Status)
	assert.Equal(t, "not relevant", detail.Reason)
	assert.Empty(t, detail.Transcripts)
}

func TestStaleSessionIsRenewedOnce(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	student := newParty(t, srv.URL)
	_, err := student.workflow.List(ctx, core.RoleReceived)
	require.NoError(t, err)
	require.EqualValues(t, 1, student.signer.signs.Load())

	// A second client for the same wallet replaces the server-side session
	twin := credgate.NewClient(srv.URL, student.signer.Address(), student.signer, credgate.NewSessionCache(store.NewMemoryStore()))
	_, err = access.NewWorkflow(twin).List(ctx, core.RoleReceived)
	require.NoError(t, err)
	require.EqualValues(t, 2, student.signer.signs.Load())

	// The first client's token is now rejected; it re-signs and the call succeeds
	_, err = student.workflow.List(ctx, core.RoleReceived)
	require.NoError(t, err)
	assert.EqualValues(t, 3, student.signer.signs.Load())
}

func TestConcurrentFirstCallsShareOneLogin(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	student := newParty(t, srv.URL)
	// a slow signer keeps the first login in flight while the other call starts
	student.signer.delay = 100 * time.Millisecond

	start := make(chan struct{})
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = student.workflow.List(ctx, core.RoleReceived)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}
	assert.EqualValues(t, 1, student.signer.signs.Load())
}

func TestLogoutForcesNewSignature(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	student := newParty(t, srv.URL)

	_, err := student.workflow.Transcripts(ctx)
	require.NoError(t, err)
	require.NoError(t, student.client.Logout(ctx))

	signs := student.signer.signs.Load()
	_, err = student.workflow.Transcripts(ctx)
	require.NoError(t, err)
	assert.Equal(t, signs+1, student.signer.signs.Load())
}

func TestMiddlewareRejections(t *testing.T) {
	srv, _ := newServer(t)
	const addr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	do := func(headers map[string]string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/requests/student_wallet", nil)
		require.NoError(t, err)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, do(nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(map[string]string{credgate.HeaderWalletAddress: "0x12"}).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(map[string]string{credgate.HeaderWalletAddress: addr}).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(map[string]string{
		credgate.HeaderWalletAddress: addr,
		credgate.HeaderSessionToken:  "not-a-token",
	}).StatusCode)
	// No nonce was issued for the wallet
	assert.Equal(t, http.StatusUnauthorized, do(map[string]string{
		credgate.HeaderWalletAddress: addr,
		credgate.HeaderSignature:     "0x00",
	}).StatusCode)
}

func TestUnknownWalletField(t *testing.T) {
	srv, _ := newServer(t)
	student := newParty(t, srv.URL)

	err := student.client.Call(context.Background(), http.MethodGet, "/requests/owner_wallet", nil, nil)
	var serverErr *credgate.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadRequest, serverErr.Status)
}

func TestGenerateNonceRequiresAddress(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + credgate.PathNonce)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
