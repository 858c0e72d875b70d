package profilex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, store RecordStore, opts ...HandlerOption) (*Handler, *Coordinator) {
	t.Helper()
	reg := testRegistry()
	fetcher := newStubFetcher()
	coord := NewCoordinator(store, reg, fetcher)
	agg := NewAggregator(store, reg, coord)
	return NewHandler(agg, opts...), coord
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedFreshRecords(t *testing.T, store RecordStore, subject string) {
	t.Helper()
	now := NowFunc()
	require.NoError(t, store.Upsert(context.Background(), subject, "ens",
		SuccessPatch(json.RawMessage(`{"name":"alice.eth","avatar":"https://img.example/a.png"}`), now, time.Hour)))
	require.NoError(t, store.Upsert(context.Background(), subject, "stats",
		SuccessPatch(json.RawMessage(`{"followers":42,"posts":7}`), now, time.Hour)))
}

func TestHandlerHealthAndRoot(t *testing.T) {
	h, _ := newTestHandler(t, NewMemoryStore())

	rec := doRequest(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "welcome")
}

func TestHandlerGetProfile(t *testing.T) {
	store := NewMemoryStore()
	seedFreshRecords(t, store, "alice.eth")
	h, _ := newTestHandler(t, store)

	rec := doRequest(h, http.MethodGet, "/profile/ALICE.ETH", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp AggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice.eth", resp.Subject, "subject is normalized")
	assert.Equal(t, StatusHit, resp.CacheStatus)
	assert.JSONEq(t, `{"name":"alice.eth","avatar":"https://img.example/a.png"}`, string(resp.Sources["ens"]))
}

func TestHandlerResponseCache(t *testing.T) {
	store := NewMemoryStore()
	seedFreshRecords(t, store, "alice.eth")

	responses, err := NewRistrettoResponses(time.Minute, 1<<20)
	require.NoError(t, err)
	defer responses.Close()

	h, _ := newTestHandler(t, store, WithResponseCache(responses))

	rec := doRequest(h, http.MethodGet, "/profile/alice.eth", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutate the store; the cached serialized response keeps serving.
	require.NoError(t, store.Upsert(context.Background(), "alice.eth", "stats",
		SuccessPatch(json.RawMessage(`{"followers":999}`), NowFunc(), time.Hour)))

	rec = doRequest(h, http.MethodGet, "/profile/alice.eth", "")
	var resp AggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"followers":42,"posts":7}`, string(resp.Sources["stats"]),
		"burst requests are absorbed by the response cache")
}

func TestHandlerPutProfileOverride(t *testing.T) {
	store := NewMemoryStore()
	seedFreshRecords(t, store, "alice.eth")

	responses, err := NewRistrettoResponses(time.Minute, 1<<20)
	require.NoError(t, err)
	defer responses.Close()

	h, _ := newTestHandler(t, store,
		WithResponseCache(responses),
		WithOverride("ens", "avatar"),
	)

	// Warm the response cache so invalidation is observable.
	doRequest(h, http.MethodGet, "/profile/alice.eth", "")

	rec := doRequest(h, http.MethodPut, "/profile/alice.eth",
		`{"avatar":"https://img.example/new.png","name":"mallory"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := store.Find(context.Background(), "alice.eth", "ens")
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Equal(t, "https://img.example/new.png", payload["avatar"])
	assert.Equal(t, "alice.eth", payload["name"], "non-whitelisted fields are ignored")

	// The cached response was invalidated, so the new avatar is visible.
	rec = doRequest(h, http.MethodGet, "/profile/alice.eth", "")
	var resp AggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, string(resp.Sources["ens"]), "new.png")
}

func TestHandlerPutProfileRejectsUselessBody(t *testing.T) {
	store := NewMemoryStore()
	h, _ := newTestHandler(t, store, WithOverride("ens", "avatar"))

	rec := doRequest(h, http.MethodPut, "/profile/alice.eth", `{"name":"mallory"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h, http.MethodPut, "/profile/alice.eth", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPutProfileDisabled(t *testing.T) {
	h, _ := newTestHandler(t, NewMemoryStore())

	rec := doRequest(h, http.MethodPut, "/profile/alice.eth", `{"avatar":"x"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerRefreshIntrospection(t *testing.T) {
	store := NewMemoryStore()
	h, coord := newTestHandler(t, store)

	rec := doRequest(h, http.MethodGet, "/debug/refreshes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inFlight":[],"events":[]}`, rec.Body.String())

	run := coord.Refresh("alice.eth", coord.registry.Sources())
	waitForRun(t, run)

	rec = doRequest(h, http.MethodGet, "/debug/refreshes", "")
	var status RefreshStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Empty(t, status.InFlight)
	require.NotEmpty(t, status.Events)
	assert.Equal(t, EventRunCompleted, status.Events[0].Kind, "most recent event first")
}
