// Package intercept sits in front of all outgoing HTTP requests and decides,
// per request class, whether to go to network, serve from cache, or queue
// the mutation for later sync. It is the service-worker layer of the app,
// expressed as an http.RoundTripper.
package intercept

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/queue"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/respcache"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

// DefaultTTL is how long a cached API GET response may be served.
const DefaultTTL = 24 * time.Hour

// QueuedHeader marks a synthetic acknowledgment for a mutation that was
// enqueued instead of delivered.
const QueuedHeader = "X-Pocketledger-Queued"

// OfflineHeader marks a response served from cache or placeholder while the
// network was unavailable.
const OfflineHeader = "X-Pocketledger-Offline"

const apiPrefix = "/api/"

// requestClass is the policy bucket a request falls into.
type requestClass int

const (
	classAPIGet requestClass = iota
	classAPIMutation
	classNavigation
	classStatic
)

// Transport implements the interception policy over a base RoundTripper.
type Transport struct {
	base       http.RoundTripper
	cache      respcache.Repository
	queue      queue.Repository
	generation string
	ttl        time.Duration
	now        func() time.Time
	log        logging.Logger
}

// Option tweaks a Transport.
type Option func(*Transport)

// WithTTL overrides the response cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(t *Transport) { t.ttl = ttl }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// New builds a Transport for the given cache generation. base may be nil, in
// which case http.DefaultTransport is used.
func New(base http.RoundTripper, cache respcache.Repository, q queue.Repository, generation string, log logging.Logger, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = logging.NopLogger{}
	}
	t := &Transport{
		base:       base,
		cache:      cache,
		queue:      q,
		generation: generation,
		ttl:        DefaultTTL,
		now:        time.Now,
		log:        log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RoundTrip classifies the request and applies the matching policy.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.classify(req) {
	case classAPIGet:
		return t.apiGet(req)
	case classAPIMutation:
		return t.apiMutation(req)
	case classNavigation:
		return t.navigation(req)
	default:
		return t.static(req)
	}
}

func (t *Transport) classify(req *http.Request) requestClass {
	if strings.HasPrefix(req.URL.Path, apiPrefix) {
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			return classAPIGet
		}
		return classAPIMutation
	}
	if req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html") {
		return classNavigation
	}
	return classStatic
}

// cacheKey builds "generation:METHOD:path+query".
func (t *Transport) cacheKey(req *http.Request) string {
	key := t.generation + ":" + req.Method + ":" + req.URL.Path
	if req.URL.RawQuery != "" {
		key += "?" + req.URL.RawQuery
	}
	return key
}

// apiGet is network-first: fetch and cache on success, fall back to an
// unexpired cached copy, and finally to a typed placeholder.
func (t *Transport) apiGet(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp = t.cacheResponse(req, resp)
		}
		return resp, nil
	}

	if cached := t.serveCached(req.Context(), req, t.cacheKey(req)); cached != nil {
		return cached, nil
	}

	t.log.Debug(req.Context(), "serving offline placeholder", "path", req.URL.Path)
	return synthesize(req, http.StatusOK, http.Header{
		"Content-Type": {"application/json"},
		OfflineHeader:  {"true"},
	}, []byte(placeholderFor(req.URL.Path))), nil
}

// apiMutation attempts network delivery; if the transport fails, the request
// is enqueued for a later sync pass and the caller receives a synthetic
// "queued" acknowledgment rather than an error. Mutations are never cached.
func (t *Transport) apiMutation(req *http.Request) (*http.Response, error) {
	// A request body stream can only be read once, so capture it before the
	// network attempt; it must still be available if the attempt fails and
	// the request has to be queued.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("capturing request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := t.base.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	entryID, qErr := t.enqueue(req, body)
	if qErr != nil {
		t.log.Error(req.Context(), "failed to queue offline mutation", "path", req.URL.Path, "error", qErr)
		return nil, err
	}

	t.log.Info(req.Context(), "mutation queued for sync", "path", req.URL.Path, "entry", entryID)
	ack, _ := json.Marshal(map[string]any{"queued": true, "id": entryID, "offline": true})
	return synthesize(req, http.StatusAccepted, http.Header{
		"Content-Type": {"application/json"},
		QueuedHeader:   {"true"},
	}, ack), nil
}

// navigation is network-first with a cached-shell fallback and a static
// offline page as the last resort.
func (t *Transport) navigation(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp = t.cacheResponse(req, resp)
		}
		return resp, nil
	}

	if cached := t.serveCached(req.Context(), req, t.cacheKey(req)); cached != nil {
		return cached, nil
	}
	return synthesize(req, http.StatusOK, http.Header{
		"Content-Type": {"text/html; charset=utf-8"},
		OfflineHeader:  {"true"},
	}, []byte(offlinePage)), nil
}

// static is cache-first; on miss it fetches and caches. On total failure a
// document request falls back to the offline shell, anything else gets 503.
func (t *Transport) static(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet {
		if cached := t.serveCached(req.Context(), req, t.cacheKey(req)); cached != nil {
			return cached, nil
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if req.Method == http.MethodGet && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp = t.cacheResponse(req, resp)
		}
		return resp, nil
	}

	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		return synthesize(req, http.StatusOK, http.Header{
			"Content-Type": {"text/html; charset=utf-8"},
			OfflineHeader:  {"true"},
		}, []byte(offlinePage)), nil
	}
	return synthesize(req, http.StatusServiceUnavailable, http.Header{
		OfflineHeader: {"true"},
	}, nil), nil
}

// cacheResponse persists resp under the request's key together with its
// metadata sibling, and returns a response whose body is still readable.
func (t *Transport) cacheResponse(req *http.Request, resp *http.Response) *http.Response {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	key := t.cacheKey(req)
	cached, err := json.Marshal(models.CachedResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	})
	if err != nil {
		return resp
	}
	now := t.now().UTC()
	meta, _ := json.Marshal(models.CacheMeta{Timestamp: now, Expires: now.Add(t.ttl)})

	ctx := req.Context()
	if err := t.cache.Set(ctx, key, cached); err != nil {
		t.log.Warn(ctx, "failed to cache response", "key", key, "error", err)
		return resp
	}
	if err := t.cache.Set(ctx, key+models.CacheMetaSuffix, meta); err != nil {
		t.log.Warn(ctx, "failed to cache response metadata", "key", key, "error", err)
	}
	return resp
}

// serveCached returns a reconstructed response when an unexpired entry
// exists. Corrupt or unparsable cache rows count as misses, never as errors.
func (t *Transport) serveCached(ctx context.Context, req *http.Request, key string) *http.Response {
	metaRaw, err := t.cache.Get(ctx, key+models.CacheMetaSuffix)
	if err != nil || metaRaw == nil {
		return nil
	}
	var meta models.CacheMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil
	}
	if !meta.Fresh(t.now().UTC()) {
		return nil
	}

	raw, err := t.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return nil
	}
	var cached models.CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}

	header := http.Header(cached.Header)
	if header == nil {
		header = http.Header{}
	}
	header = header.Clone()
	header.Set(OfflineHeader, "true")
	return synthesize(req, cached.Status, header, cached.Body)
}

// enqueue converts a failed mutating request into a queue entry. The path
// names the collection; the method names the operation; the captured body is
// the payload (with the URL id merged in for updates and deletes).
func (t *Transport) enqueue(req *http.Request, body []byte) (string, error) {
	col, id, ok := splitAPIPath(req.URL.Path)
	if !ok {
		return "", fmt.Errorf("path %s does not address a record collection", req.URL.Path)
	}

	var op models.Operation
	switch req.Method {
	case http.MethodPost:
		op = models.OpCreate
	case http.MethodPut, http.MethodPatch:
		op = models.OpUpdate
	case http.MethodDelete:
		op = models.OpDelete
	default:
		return "", fmt.Errorf("method %s is not a mutation", req.Method)
	}

	payload, err := mergeID(body, id)
	if err != nil {
		return "", err
	}

	entry := &models.QueueEntry{
		Id:         uuid.NewString(),
		Operation:  op,
		Collection: col,
		Payload:    payload,
		EnqueuedAt: t.now().UTC(),
	}
	if err := t.queue.Enqueue(req.Context(), entry); err != nil {
		return "", err
	}
	return entry.Id, nil
}

// Cleanup deletes every cache entry whose TTL has lapsed, along with its
// metadata sibling. Rows with unparsable metadata are purged as corrupt.
// Run opportunistically, e.g. during each sync cycle.
func (t *Transport) Cleanup(ctx context.Context) error {
	metaKeys, err := t.cache.Keys(ctx, "%"+models.CacheMetaSuffix)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	for _, metaKey := range metaKeys {
		raw, err := t.cache.Get(ctx, metaKey)
		if err != nil {
			continue
		}
		var meta models.CacheMeta
		expired := json.Unmarshal(raw, &meta) != nil || !meta.Fresh(now)
		if !expired {
			continue
		}
		dataKey := strings.TrimSuffix(metaKey, models.CacheMetaSuffix)
		if err := t.cache.Delete(ctx, dataKey); err != nil {
			return err
		}
		if err := t.cache.Delete(ctx, metaKey); err != nil {
			return err
		}
		t.log.Debug(ctx, "purged expired cache entry", "key", dataKey)
	}
	return nil
}

// Activate purges every cache generation except the current one. Called when
// a new client version takes over so no stale cross-version entries survive.
func (t *Transport) Activate(ctx context.Context) error {
	return t.cache.DeleteNotLike(ctx, t.generation+":%")
}

// splitAPIPath extracts the collection and optional record id from an API
// path like /api/transactions/abc123.
func splitAPIPath(path string) (models.Collection, string, bool) {
	trimmed := strings.TrimPrefix(path, apiPrefix)
	parts := strings.SplitN(trimmed, "/", 2)
	col := models.Collection(parts[0])
	if !col.Valid() {
		return "", "", false
	}
	id := ""
	if len(parts) == 2 {
		id = parts[1]
	}
	return col, id, true
}

// mergeID ensures the payload JSON carries the record id addressed by the
// URL, so the queue entry is self-contained.
func mergeID(body []byte, id string) (json.RawMessage, error) {
	if id == "" {
		if len(body) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return body, nil
	}
	m := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("mutation body is not a JSON object: %w", err)
		}
	}
	idJSON, _ := json.Marshal(id)
	m["id"] = idJSON
	return json.Marshal(m)
}

// synthesize builds an in-memory response for req.
func synthesize(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// IsQueued reports whether resp is a synthetic acknowledgment for a mutation
// that was queued instead of delivered.
func IsQueued(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(QueuedHeader) == "true"
}
