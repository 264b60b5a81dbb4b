package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/config"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
)

// createdAtLayout is the timestamp format used by the v1.1 API.
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// TwitterClient implements Gateway against the Twitter REST API.
// Write operations and timeline reads go through the OAuth1-signed v1.1
// endpoints; impression counts come from the v2 endpoint with the bearer
// token, since v1.1 does not expose public_metrics.
type TwitterClient struct {
	oauthClient *http.Client
	httpClient  *http.Client
	bearerToken string
	baseURL     string
	v2BaseURL   string
	pacer       *pacer
	logger      *logger.Logger
}

var _ Gateway = (*TwitterClient)(nil)

// NewTwitterClient creates a gateway from the configured credentials.
func NewTwitterClient(cfg config.TwitterConfig, log *logger.Logger) *TwitterClient {
	oaCfg := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	oauthClient := oaCfg.Client(oauth1.NoContext, token)
	oauthClient.Timeout = 30 * time.Second

	return &TwitterClient{
		oauthClient: oauthClient,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		bearerToken: cfg.BearerToken,
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		v2BaseURL:   strings.TrimRight(cfg.APIv2BaseURL, "/"),
		pacer:       newPacer(cfg.CallSpacingDuration()),
		logger:      log.WithFields(zap.String("component", "twitter-client")),
	}
}

// tweetV1 is the subset of the v1.1 status payload the scheduler needs.
type tweetV1 struct {
	IDStr     string `json:"id_str"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Favorited bool   `json:"favorited"`
}

func (t *tweetV1) toContentItem() ContentItem {
	item := ContentItem{
		ID:        t.IDStr,
		Text:      t.Text,
		Favorited: t.Favorited,
	}
	if created, err := time.Parse(createdAtLayout, t.CreatedAt); err == nil {
		item.CreatedAt = created.UTC()
	}
	return item
}

// PostContent publishes a new status update.
func (c *TwitterClient) PostContent(ctx context.Context, text string) (*ContentItem, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{"status": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/statuses/update.json", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tweet tweetV1
	if err := c.doV1(req, &tweet); err != nil {
		return nil, fmt.Errorf("post content: %w", err)
	}

	item := tweet.toContentItem()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	c.logger.Info("posted content", zap.String("content_id", item.ID))
	return &item, nil
}

// DeleteContent destroys a status. Deletion is irreversible.
func (c *TwitterClient) DeleteContent(ctx context.Context, id string) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/statuses/destroy/%s.json", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return err
	}

	if err := c.doV1(req, nil); err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	c.logger.Info("deleted content", zap.String("content_id", id))
	return nil
}

// FavoritedByOwner checks whether the authenticated account has liked the post.
func (c *TwitterClient) FavoritedByOwner(ctx context.Context, id string) (bool, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/statuses/show/%s.json", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return false, err
	}

	var tweet tweetV1
	if err := c.doV1(req, &tweet); err != nil {
		return false, fmt.Errorf("favorited check %s: %w", id, err)
	}
	return tweet.Favorited, nil
}

// ListRecent fetches up to limit of the account's most recent posts,
// excluding retweets.
func (c *TwitterClient) ListRecent(ctx context.Context, limit int) ([]ContentItem, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"count":       {strconv.Itoa(limit)},
		"include_rts": {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/statuses/user_timeline.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var tweets []tweetV1
	if err := c.doV1(req, &tweets); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	items := make([]ContentItem, 0, len(tweets))
	for i := range tweets {
		items = append(items, tweets[i].toContentItem())
	}
	return items, nil
}

// EngagementCount returns the impression count from the v2 metrics endpoint.
func (c *TwitterClient) EngagementCount(ctx context.Context, id string) (int, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", c.v2BaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("engagement fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		drainBody(resp.Body)
		return 0, fmt.Errorf("engagement fetch %s: %w", id, err)
	}

	var payload struct {
		Data struct {
			PublicMetrics struct {
				ImpressionCount int `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("engagement decode %s: %w", id, err)
	}
	return payload.Data.PublicMetrics.ImpressionCount, nil
}

// doV1 executes an OAuth1-signed v1.1 request and decodes the response into
// out when non-nil.
func (c *TwitterClient) doV1(req *http.Request, out interface{}) error {
	resp, err := c.oauthClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		drainBody(resp.Body)
		return err
	}
	if out == nil {
		drainBody(resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusToError maps an HTTP status to the gateway error taxonomy.
func statusToError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}
