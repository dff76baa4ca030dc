package intercept

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/queue"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/respcache"

	_ "modernc.org/sqlite"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

var errConnRefused = errors.New("dial tcp: connection refused")

func offlineBase() rtFunc {
	return func(*http.Request) (*http.Response, error) { return nil, errConnRefused }
}

func jsonBase(t *testing.T, status int, body string) rtFunc {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		return synthesize(req, status, http.Header{"Content-Type": {"application/json"}}, []byte(body)), nil
	}
}

func setupRepos(t *testing.T) (respcache.Repository, queue.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE response_cache (key TEXT PRIMARY KEY, value BLOB NOT NULL);
CREATE TABLE sync_queue (
  position INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  operation TEXT NOT NULL,
  collection TEXT NOT NULL,
  payload BLOB NOT NULL,
  enqueued_at TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return respcache.NewSQLiteRepository(db), queue.NewSQLiteRepository(db)
}

func get(t *testing.T, tr *Transport, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}

func TestAPIGet_OnlineCachesResponse(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(jsonBase(t, 200, `{"ok":1}`), cache, q, "v1", nil)

	resp := get(t, tr, "http://app/api/accounts")
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"ok":1}`, string(readBody(t, resp)))

	ctx := context.Background()
	raw, err := cache.Get(ctx, "v1:GET:/api/accounts")
	require.NoError(t, err)
	require.NotNil(t, raw, "successful API GETs must be cached")

	metaRaw, err := cache.Get(ctx, "v1:GET:/api/accounts:metadata")
	require.NoError(t, err)
	require.NotNil(t, metaRaw)
	var meta models.CacheMeta
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.True(t, meta.Expires.After(meta.Timestamp))
}

func TestAPIGet_OfflineServesFreshCache(t *testing.T) {
	cache, q := setupRepos(t)

	online := New(jsonBase(t, 200, `[{"id":"a1"}]`), cache, q, "v1", nil)
	_ = readBody(t, get(t, online, "http://app/api/accounts"))

	offline := New(offlineBase(), cache, q, "v1", nil)
	resp := get(t, offline, "http://app/api/accounts")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(OfflineHeader))
	assert.JSONEq(t, `[{"id":"a1"}]`, string(readBody(t, resp)))
}

func TestAPIGet_ExpiredCacheNeverServed(t *testing.T) {
	cache, q := setupRepos(t)
	now := time.Now().UTC()

	// cache written in the past with a TTL that has already lapsed
	past := New(jsonBase(t, 200, `[{"id":"stale"}]`), cache, q, "v1", nil,
		WithClock(func() time.Time { return now.Add(-25 * time.Hour) }))
	_ = readBody(t, get(t, past, "http://app/api/accounts"))

	offline := New(offlineBase(), cache, q, "v1", nil, WithClock(func() time.Time { return now }))
	resp := get(t, offline, "http://app/api/accounts")
	assert.JSONEq(t, placeholderList, string(readBody(t, resp)), "expired entries fall through to the placeholder")
}

func TestAPIGet_OfflinePlaceholderShapes(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(offlineBase(), cache, q, "v1", nil)

	resp := get(t, tr, "http://app/api/transactions?page=1")
	var shape map[string]any
	require.NoError(t, json.Unmarshal(readBody(t, resp), &shape))
	assert.Contains(t, shape, "transactions")
	assert.Contains(t, shape, "total")
	assert.Contains(t, shape, "totalPages")
	assert.Contains(t, shape, "currentPage")
	assert.NotNil(t, shape["transactions"], "placeholder list must be empty, never null")
	assert.Equal(t, float64(1), shape["currentPage"])

	resp = get(t, tr, "http://app/api/analytics/summary")
	var summary map[string]any
	require.NoError(t, json.Unmarshal(readBody(t, resp), &summary))
	assert.Contains(t, summary, "totalIncome")
	assert.Contains(t, summary, "monthlyExpense")
}

func TestCleanup_RemovesExpiredPairs(t *testing.T) {
	cache, q := setupRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expiredMeta, _ := json.Marshal(models.CacheMeta{Timestamp: now.Add(-time.Hour), Expires: now.Add(-time.Millisecond)})
	freshMeta, _ := json.Marshal(models.CacheMeta{Timestamp: now, Expires: now.Add(time.Hour)})
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/old", []byte("x")))
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/old:metadata", expiredMeta))
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/new", []byte("y")))
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/new:metadata", freshMeta))
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/corrupt", []byte("z")))
	require.NoError(t, cache.Set(ctx, "v1:GET:/api/corrupt:metadata", []byte("not json")))

	tr := New(offlineBase(), cache, q, "v1", nil, WithClock(func() time.Time { return now }))
	require.NoError(t, tr.Cleanup(ctx))

	keys, err := cache.Keys(ctx, "%")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1:GET:/api/new", "v1:GET:/api/new:metadata"}, keys,
		"expired and corrupt entries go, together with their metadata siblings")
}

func TestMutation_OfflineQueuesAndAcks(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(offlineBase(), cache, q, "v1", nil)

	body := `{"amount":"50","type":"expense","accountId":"a1"}`
	req, err := http.NewRequest(http.MethodPost, "http://app/api/transactions", bytes.NewBufferString(body))
	require.NoError(t, err)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err, "offline mutations must not fail the caller")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, IsQueued(resp))

	var ack map[string]any
	require.NoError(t, json.Unmarshal(readBody(t, resp), &ack))
	assert.Equal(t, true, ack["queued"])

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Operation)
	assert.Equal(t, models.CollectionTransactions, entries[0].Collection)
	assert.JSONEq(t, body, string(entries[0].Payload), "the captured body survives the failed network attempt")
}

func TestMutation_DeleteCarriesURLId(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(offlineBase(), cache, q, "v1", nil)

	req, err := http.NewRequest(http.MethodDelete, "http://app/api/accounts/acc-7", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.True(t, IsQueued(resp))

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Operation)
	assert.JSONEq(t, `{"id":"acc-7"}`, string(entries[0].Payload))
}

func TestMutation_OnlinePassesThroughAndNeverCaches(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(jsonBase(t, 201, `{"id":"srv-1"}`), cache, q, "v1", nil)

	req, err := http.NewRequest(http.MethodPost, "http://app/api/accounts", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.False(t, IsQueued(resp))

	keys, err := cache.Keys(context.Background(), "%")
	require.NoError(t, err)
	assert.Empty(t, keys, "mutations are never cached")

	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNavigation_OfflineFallbackPage(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(offlineBase(), cache, q, "v1", nil)

	req, err := http.NewRequest(http.MethodGet, "http://app/", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), "offline")
}

func TestStatic_OfflineNonDocumentGets503(t *testing.T) {
	cache, q := setupRepos(t)
	tr := New(offlineBase(), cache, q, "v1", nil)

	req, err := http.NewRequest(http.MethodGet, "http://app/assets/app.js", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestActivate_PurgesOtherGenerations(t *testing.T) {
	cache, q := setupRepos(t)
	ctx := context.Background()

	v1 := New(jsonBase(t, 200, `[]`), cache, q, "v1", nil)
	_ = readBody(t, get(t, v1, "http://app/api/accounts"))

	v2 := New(jsonBase(t, 200, `[]`), cache, q, "v2", nil)
	_ = readBody(t, get(t, v2, "http://app/api/categories"))
	require.NoError(t, v2.Activate(ctx))

	keys, err := cache.Keys(ctx, "v1:%")
	require.NoError(t, err)
	assert.Empty(t, keys, "previous generation must be gone")

	keys, err = cache.Keys(ctx, "v2:%")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
