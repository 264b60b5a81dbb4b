package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/controller"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/policy"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/scheduler"
)

// stubGateway publishes posts with a fixed id and fails everything else.
type stubGateway struct {
	postErr error
	created platform.ContentItem
}

func (g *stubGateway) PostContent(ctx context.Context, text string) (*platform.ContentItem, error) {
	if g.postErr != nil {
		return nil, g.postErr
	}
	item := g.created
	item.Text = text
	return &item, nil
}

func (g *stubGateway) DeleteContent(ctx context.Context, id string) error { return nil }

func (g *stubGateway) EngagementCount(ctx context.Context, id string) (int, error) { return 0, nil }

func (g *stubGateway) FavoritedByOwner(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (g *stubGateway) ListRecent(ctx context.Context, limit int) ([]platform.ContentItem, error) {
	return nil, nil
}

// stubRetainer records observe/purge calls without a real scheduling loop.
type stubRetainer struct {
	observed   []platform.ContentItem
	observeRes scheduler.ObserveResult
	observeErr error

	purged   []time.Duration
	purgeRes []string
	purgeErr error

	tracked int
	halted  bool
	running bool
}

func (r *stubRetainer) Observe(ctx context.Context, item platform.ContentItem) (scheduler.ObserveResult, error) {
	r.observed = append(r.observed, item)
	return r.observeRes, r.observeErr
}

func (r *stubRetainer) Purge(ctx context.Context, olderThan time.Duration) ([]string, error) {
	r.purged = append(r.purged, olderThan)
	return r.purgeRes, r.purgeErr
}

func (r *stubRetainer) TrackedCount() int { return r.tracked }
func (r *stubRetainer) Halted() bool      { return r.halted }
func (r *stubRetainer) IsRunning() bool   { return r.running }

func setupRouter(t *testing.T, gw *stubGateway, ret *stubRetainer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	ctrl := controller.NewController(gw, ret, policy.Defaults())
	router := gin.New()
	RegisterRoutes(router, ctrl, log)
	return router
}

func TestPostContent(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	deleteAt := created.Add(12 * time.Hour)
	gw := &stubGateway{created: platform.ContentItem{ID: "1234", CreatedAt: created}}
	ret := &stubRetainer{
		running:    true,
		observeRes: scheduler.ObserveResult{Decision: policy.KindDeleteAt, DeleteAt: deleteAt},
	}
	router := setupRouter(t, gw, ret)

	body, _ := json.Marshal(map[string]string{"text": "hello world"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/content", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1234", resp["id"])
	assert.Equal(t, "hello world", resp["text"])
	assert.Equal(t, "delete_at", resp["decision"])
	assert.Equal(t, deleteAt.Format(time.RFC3339), resp["planned_deletion_time"])

	require.Len(t, ret.observed, 1)
	assert.Equal(t, "1234", ret.observed[0].ID)
}

func TestPostContentRejectsEmptyBody(t *testing.T) {
	router := setupRouter(t, &stubGateway{}, &stubRetainer{running: true})

	for _, payload := range []string{``, `{}`, `{"text": ""}`, `{"text": "   "}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/content", bytes.NewReader([]byte(payload)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %q", payload)
	}
}

func TestPostContentUpstreamFailure(t *testing.T) {
	gw := &stubGateway{postErr: platform.ErrRateLimited}
	router := setupRouter(t, gw, &stubRetainer{running: true})

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/content", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPurgeDefaultsToRetentionWindow(t *testing.T) {
	ret := &stubRetainer{running: true, purgeRes: []string{"1", "2"}}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"1", "2"}, resp.Deleted)

	require.Len(t, ret.purged, 1)
	assert.Equal(t, 12*time.Hour, ret.purged[0])
}

func TestPurgeCustomCutoff(t *testing.T) {
	ret := &stubRetainer{running: true, purgeRes: []string{}}
	router := setupRouter(t, &stubGateway{}, ret)

	body := []byte(`{"hours": 48}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ret.purged, 1)
	assert.Equal(t, 48*time.Hour, ret.purged[0])
}

func TestPurgeChunkedBodyHonorsHours(t *testing.T) {
	ret := &stubRetainer{running: true, purgeRes: []string{}}
	router := setupRouter(t, &stubGateway{}, ret)

	// Wrapping the reader leaves ContentLength at -1, as with a chunked
	// request; the cutoff from the body must still apply.
	body := struct{ io.Reader }{bytes.NewReader([]byte(`{"hours": 48}`))}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ret.purged, 1)
	assert.Equal(t, 48*time.Hour, ret.purged[0])
}

func TestPurgeMalformedBody(t *testing.T) {
	ret := &stubRetainer{running: true}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", bytes.NewReader([]byte(`{"hours": `)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ret.purged)
}

func TestPurgeConflictWhenHalted(t *testing.T) {
	ret := &stubRetainer{running: true, halted: true, purgeErr: scheduler.ErrHalted}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPurgeUpstreamFailure(t *testing.T) {
	ret := &stubRetainer{running: true, purgeErr: errors.New("timeline unavailable")}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealth(t *testing.T) {
	ret := &stubRetainer{running: true, tracked: 7}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status  string `json:"status"`
		Tracked int    `json:"tracked"`
		Halted  bool   `json:"halted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 7, resp.Tracked)
	assert.False(t, resp.Halted)
}

func TestHealthHalted(t *testing.T) {
	ret := &stubRetainer{running: true, halted: true, tracked: 3}
	router := setupRouter(t, &stubGateway{}, ret)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
		Halted bool   `json:"halted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "halted", resp.Status)
	assert.True(t, resp.Halted)
}
