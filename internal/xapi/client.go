// Package xapi は X API v2 のクライアントを提供します。
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

const defaultBaseURL = "https://api.x.com/2"

// APIError は X API の失敗応答を表します。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api: %s (status %d)", e.Message, e.StatusCode)
}

// PostText は投稿1件の本文取得結果です。
// 長文投稿では Text が短縮されるため、ExtendedText があればそちらを優先します。
type PostText struct {
	Text         string
	ExtendedText string
	Truncated    bool
}

// Client は Bearer トークンで X API v2 を呼び出します。
type Client struct {
	baseURL string
	token   string
	client  *http.Client

	mu     sync.Mutex
	userID string
}

// NewClient は Client を作成します。userID が空の場合は /users/me で遅延解決します。
func NewClient(token, userID, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  httpClient,
		userID:  userID,
	}
}

// LikedPosts はユーザーが「いいね」した投稿を新しい順に返します。
// count は返却件数の上限で、API の max_results は 5〜100 に丸めて指定します。
func (c *Client) LikedPosts(ctx context.Context, count int) ([]briefing.LikedPost, error) {
	userID, err := c.resolveUserID(ctx)
	if err != nil {
		return nil, err
	}

	requested := count
	if requested < 1 {
		requested = 1
	}
	apiMax := requested
	if apiMax < 5 {
		apiMax = 5
	}
	if apiMax > 100 {
		apiMax = 100
	}

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(apiMax))
	query.Set("tweet.fields", "created_at,entities")
	endpoint := fmt.Sprintf("%s/users/%s/liked_tweets?%s", c.baseURL, userID, query.Encode())

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("liked_tweets request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		drainBody(resp.Body)
		return nil, &APIError{
			StatusCode: http.StatusPaymentRequired,
			Message:    "X liked_tweets endpoint returned 402 (Payment Required). The current X API plan likely does not allow this endpoint.",
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "liked_tweets")
	}

	var payload struct {
		Data []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
			Entities  struct {
				URLs []struct {
					URL         string `json:"url"`
					ExpandedURL string `json:"expanded_url"`
				} `json:"urls"`
			} `json:"entities"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode liked_tweets response: %w", err)
	}

	out := make([]briefing.LikedPost, 0, len(payload.Data))
	for _, row := range payload.Data {
		urls := c.extractURLs(ctx, row.Text)
		if len(urls) == 0 {
			for _, ent := range row.Entities.URLs {
				expanded := ent.ExpandedURL
				if expanded == "" {
					expanded = ent.URL
				}
				urls = append(urls, c.extractURLs(ctx, expanded)...)
			}
			urls = dedupeOrdered(urls)
		}
		out = append(out, briefing.LikedPost{
			ID:        row.ID,
			Text:      row.Text,
			CreatedAt: row.CreatedAt,
			URLs:      urls,
		})
	}
	if len(out) > requested {
		out = out[:requested]
	}
	return out, nil
}

// FullText は投稿IDから本文を取得します。長文投稿の全文は note_tweet に入ります。
func (c *Client) FullText(ctx context.Context, postID string) (*PostText, error) {
	if postID == "" {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: "post id is required"}
	}
	if c.token == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "X API token is not configured"}
	}

	endpoint := fmt.Sprintf("%s/tweets/%s?tweet.fields=note_tweet", c.baseURL, url.PathEscape(postID))
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tweet lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "tweet lookup")
	}

	var payload struct {
		Data struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			NoteTweet struct {
				Text string `json:"text"`
			} `json:"note_tweet"`
		} `json:"data"`
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tweet lookup response: %w", err)
	}

	// 削除済み・非公開の投稿は 200 のまま errors 配列で返る。
	if payload.Data.ID == "" {
		message := "tweet not found"
		if len(payload.Errors) > 0 && payload.Errors[0].Title != "" {
			message = payload.Errors[0].Title
		}
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: message}
	}

	text := &PostText{
		Text:         payload.Data.Text,
		ExtendedText: payload.Data.NoteTweet.Text,
	}
	text.Truncated = text.ExtendedText == "" && hasTruncationMarker(text.Text)
	return text, nil
}

func (c *Client) resolveUserID(ctx context.Context) (string, error) {
	if c.token == "" {
		return "", &APIError{StatusCode: http.StatusUnauthorized, Message: "X_BEARER_TOKEN or X_ACCESS_TOKEN is not set"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID, nil
	}

	resp, err := c.get(ctx, c.baseURL+"/users/me")
	if err != nil {
		return "", fmt.Errorf("users/me request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp, "users/me")
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode users/me response: %w", err)
	}
	if payload.Data.ID == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Message: "failed to resolve X user id from /users/me"}
	}
	c.userID = payload.Data.ID
	return c.userID, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.client.Do(req)
}

func apiError(resp *http.Response, operation string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
	message := fmt.Sprintf("%s returned %d", operation, resp.StatusCode)
	if body := strings.TrimSpace(string(snippet)); body != "" {
		message = fmt.Sprintf("%s, body: %s", message, body)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

var shortLinkTailPattern = regexp.MustCompile(`https://t\.co/\w+$`)

// hasTruncationMarker は本文が途中で切れていそうかを判定します。
func hasTruncationMarker(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "…") || strings.HasSuffix(trimmed, "...") {
		return true
	}
	return shortLinkTailPattern.MatchString(trimmed)
}
