package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/config"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server) *TwitterClient {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	return NewTwitterClient(config.TwitterConfig{
		APIKey:            "key",
		APISecret:         "secret",
		AccessToken:       "token",
		AccessTokenSecret: "token-secret",
		BearerToken:       "bearer-token",
		APIBaseURL:        srv.URL,
		APIv2BaseURL:      srv.URL + "/2",
		CallSpacing:       0,
		TimelineLimit:     200,
	}, log)
}

func TestPostContent(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/statuses/update.json", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "OAuth")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id_str": "1234567890",
			"text": "hello world",
			"created_at": "Mon Sep 01 10:30:00 +0000 2025",
			"favorited": false
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	item, err := client.PostContent(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, "hello world", gotForm.Get("status"))
	assert.Equal(t, "1234567890", item.ID)
	assert.Equal(t, "hello world", item.Text)
	assert.Equal(t, time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC), item.CreatedAt)
	assert.False(t, item.Favorited)
}

func TestDeleteContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/statuses/destroy/42.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"id_str": "42"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	require.NoError(t, client.DeleteContent(context.Background(), "42"))
}

func TestDeleteContentErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(t, srv)
			err := client.DeleteContent(context.Background(), "42")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFavoritedByOwner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/statuses/show/42.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"id_str": "42", "favorited": true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	favorited, err := client.FavoritedByOwner(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, favorited)
}

func TestListRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/statuses/user_timeline.json", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("count"))
		assert.Equal(t, "false", r.URL.Query().Get("include_rts"))
		_, _ = w.Write([]byte(`[
			{"id_str": "1", "text": "first", "created_at": "Mon Sep 01 10:00:00 +0000 2025"},
			{"id_str": "2", "text": "second", "created_at": "Mon Sep 01 11:00:00 +0000 2025", "favorited": true}
		]`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	items, err := client.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "second", items[1].Text)
	assert.True(t, items[1].Favorited)
}

func TestEngagementCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets/42", r.URL.Path)
		assert.Equal(t, "public_metrics", r.URL.Query().Get("tweet.fields"))
		assert.Equal(t, "Bearer bearer-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": {"public_metrics": {"impression_count": 1500}}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	count, err := client.EngagementCount(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 1500, count)
}

func TestEngagementCountUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.EngagementCount(context.Background(), "42")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStatusToError(t *testing.T) {
	assert.NoError(t, statusToError(200))
	assert.NoError(t, statusToError(204))
	assert.ErrorIs(t, statusToError(404), ErrNotFound)
	assert.ErrorIs(t, statusToError(401), ErrUnauthorized)
	assert.ErrorIs(t, statusToError(403), ErrUnauthorized)
	assert.ErrorIs(t, statusToError(429), ErrRateLimited)
	assert.Error(t, statusToError(500))
}
