package xapi

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s)\]>'"]+`)

// RemoveTrackingParams は utm_* などの追跡パラメータとフラグメントを取り除きます。
func RemoveTrackingParams(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "fbclid" || lower == "gclid" {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}

// expandShortURL は t.co などの短縮URLをリダイレクト追跡で展開します。
func (c *Client) expandShortURL(ctx context.Context, shortURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return shortURL
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return shortURL
	}
	defer resp.Body.Close()
	drainBody(resp.Body)

	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return shortURL
}

// extractURLs はテキスト中のURLを出現順に取り出して正規化します。
func (c *Client) extractURLs(ctx context.Context, text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	urls := make([]string, 0, len(matches))
	for _, match := range matches {
		normalized := RemoveTrackingParams(strings.TrimRight(match, ".,"))
		if strings.Contains(normalized, "t.co/") {
			normalized = RemoveTrackingParams(c.expandShortURL(ctx, normalized))
		}
		urls = append(urls, normalized)
	}
	return dedupeOrdered(urls)
}

func dedupeOrdered(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
