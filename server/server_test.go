package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/recommend"
	"github.com/rushteam/lookbook/store"
)

type fakeRecommender struct {
	lastUser    string
	lastLimit   int
	lastAnchor  string
	lastMax     int
	lastRequest string
	events      []core.InteractionEvent
	invalidated []string
	ready       bool
	err         error
}

func (f *fakeRecommender) RecommendForYou(ctx context.Context, userID string, limit int) (*recommend.ForYouResponse, error) {
	f.lastUser, f.lastLimit, f.lastRequest = userID, limit, recommend.RequestID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.ForYouResponse{Items: []core.RankedItem{
		{ProductID: "DRESS-4", Score: 0.82, Reasons: []string{core.ReasonContentSimilarity, core.ReasonInterestMatch}},
	}}, nil
}

func (f *fakeRecommender) CompleteTheLook(_ context.Context, anchorID string, maxItems int) (*recommend.LookResponse, error) {
	f.lastAnchor, f.lastMax = anchorID, maxItems
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.LookResponse{AnchorID: anchorID, Items: []core.BundleItem{{ProductID: "PANTS-002", CompatibilityScore: 0.8}}}, nil
}

func (f *fakeRecommender) Similar(_ context.Context, productID string, limit int) (*recommend.SimilarResponse, error) {
	f.lastAnchor, f.lastLimit = productID, limit
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.SimilarResponse{ProductID: productID, Items: []core.RankedItem{
		{ProductID: "DRESS-4", Score: 0.7, Reasons: []string{core.ReasonContentSimilarity}},
	}}, nil
}

func (f *fakeRecommender) Popular(_ context.Context, limit int) ([]core.RankedItem, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []core.RankedItem{{ProductID: "SHIRT-001", Score: 1, Reasons: []string{core.ReasonPopularity}}}, nil
}

func (f *fakeRecommender) Record(_ context.Context, ev core.InteractionEvent) error {
	if ev.UserID == "" {
		return core.ValidationError(core.ModuleLedger, "invalid input: UserID is required")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecommender) InvalidateProduct(_ context.Context, id string) { f.invalidated = append(f.invalidated, id) }

func (f *fakeRecommender) Health(context.Context) recommend.Health {
	return recommend.Health{Status: recommend.StatusOK, Ready: f.ready, Components: map[string]string{}}
}

func (f *fakeRecommender) CacheStats() map[string]store.CacheStats {
	return map[string]store.CacheStats{"for_you": {Hits: 3, Misses: 1, HitRate: 0.75, Entries: 1}}
}

func newServer(f *fakeRecommender) http.Handler {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	return New(cfg, f, logging.Nop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestForYou(t *testing.T) {
	f := &fakeRecommender{}
	rec := do(t, newServer(f), http.MethodGet, "/v1/users/U-1/for-you?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U-1", f.lastUser)
	assert.Equal(t, 10, f.lastLimit)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), f.lastRequest)

	var body struct {
		Items []struct {
			ProductID string   `json:"productID"`
			Score     float64  `json:"score"`
			Reasons   []string `json:"reasons"`
		} `json:"items"`
		Degraded bool `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "DRESS-4", body.Items[0].ProductID)
	assert.Equal(t, []string{"content_similarity", "interest_match"}, body.Items[0].Reasons)
	assert.False(t, body.Degraded)
}

func TestForYou_DefaultLimitAndRequestID(t *testing.T) {
	f := &fakeRecommender{}
	req := httptest.NewRequest(http.MethodGet, "/v1/users/U-1/for-you", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	newServer(f).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLimit, f.lastLimit)
	assert.Equal(t, "req-42", f.lastRequest)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestCompleteTheLook(t *testing.T) {
	f := &fakeRecommender{}
	rec := do(t, newServer(f), http.MethodGet, "/v1/products/SHIRT-001/complete-the-look?maxItems=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SHIRT-001", f.lastAnchor)
	assert.Equal(t, 2, f.lastMax)
	assert.JSONEq(t, `{"anchorID":"SHIRT-001","items":[{"productID":"PANTS-002","compatibilityScore":0.8}],"degraded":false}`, rec.Body.String())
}

func TestSimilar(t *testing.T) {
	f := &fakeRecommender{}
	rec := do(t, newServer(f), http.MethodGet, "/v1/products/DRESS-1/similar?limit=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DRESS-1", f.lastAnchor)
	assert.Equal(t, 4, f.lastLimit)
	assert.JSONEq(t, `{"productID":"DRESS-1","items":[{"productID":"DRESS-4","score":0.7,"reasons":["content_similarity"]}],"degraded":false}`, rec.Body.String())

	do(t, newServer(f), http.MethodGet, "/v1/products/DRESS-1/similar", "")
	assert.Equal(t, defaultLimit, f.lastLimit)
}

func TestPopular(t *testing.T) {
	f := &fakeRecommender{}
	rec := do(t, newServer(f), http.MethodGet, "/v1/popular?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.lastLimit)
	assert.JSONEq(t, `{"items":[{"productID":"SHIRT-001","score":1,"reasons":["popularity"]}]}`, rec.Body.String())

	rec = do(t, newServer(f), http.MethodGet, "/v1/popular?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		path   string
		status int
		code   string
	}{
		{"validation", core.ValidationError(core.ModuleRecommend, "limit must be in 1..100"), "/v1/users/U/for-you", http.StatusBadRequest, core.ErrorCodeInvalidInput},
		{"not found", core.NotFoundError(core.ModuleBundle, "anchor X has no features"), "/v1/products/X/complete-the-look", http.StatusNotFound, core.ErrorCodeNotFound},
		{"unexpected", errors.New("boom"), "/v1/users/U/for-you", http.StatusInternalServerError, core.ErrorCodeInternalError},
		{"bad limit", nil, "/v1/users/U/for-you?limit=ten", http.StatusBadRequest, core.ErrorCodeInvalidInput},
		{"similar not found", core.NotFoundError(core.ModuleRecommend, "product X"), "/v1/products/X/similar", http.StatusNotFound, core.ErrorCodeNotFound},
		{"popular validation", core.ValidationError(core.ModuleRecommend, "limit must be in 1..100"), "/v1/popular?limit=500", http.StatusBadRequest, core.ErrorCodeInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := do(t, newServer(&fakeRecommender{err: c.err}), http.MethodGet, c.path, "")
			assert.Equal(t, c.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, c.code, body.Error.Code)
			if c.status == http.StatusInternalServerError {
				assert.NotContains(t, body.Error.Message, "boom")
			}
		})
	}
}

func TestRecordEvent(t *testing.T) {
	f := &fakeRecommender{}
	h := newServer(f)

	rec := do(t, h, http.MethodPost, "/v1/events",
		`{"userID":"U-1","productID":"DRESS-1","kind":"view","timestamp":"2026-10-01T12:00:00Z","context":{"categories":["Dresses"]}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.events, 1)
	assert.Equal(t, core.EventView, f.events[0].Kind)
	assert.Equal(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), f.events[0].Timestamp.UTC())
	assert.Equal(t, []string{"Dresses"}, f.events[0].Context.Categories)

	rec = do(t, h, http.MethodPost, "/v1/events", `{"userID":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/events", `{"userID":"U-1","productID":"P","kind":"view","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/events", `{"productID":"P","kind":"view"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.events, 1)
}

func TestInvalidateProduct(t *testing.T) {
	f := &fakeRecommender{}
	h := newServer(f)
	rec := do(t, h, http.MethodPost, "/v1/products/BELT-003/invalidate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"BELT-003"}, f.invalidated)

	rec = do(t, h, http.MethodPost, "/v1/products/%20bad/invalidate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.invalidated, 1)
}

func TestHealthAndReadiness(t *testing.T) {
	f := &fakeRecommender{}
	h := newServer(f)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)
	f.ready = true
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	rec := do(t, h, http.MethodGet, "/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hitRate":0.75`)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	cfg.RateWindow = time.Minute
	h := New(cfg, &fakeRecommender{}, logging.Nop()).Handler()

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, h, http.MethodGet, "/v1/users/U/for-you", "").Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	// 探活不限流
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestServe_Shutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, &fakeRecommender{}, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, "http-server", srv.String())
}
