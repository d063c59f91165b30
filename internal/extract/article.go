package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	readability "github.com/go-shiori/go-readability"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

const (
	defaultJinaBaseURL = "https://r.jina.ai"
	fetchUserAgent     = "Mozilla/5.0"

	maxFetchBytes = 2 << 20

	maxTitleChars       = 200
	maxDescriptionChars = 800
)

var (
	titlePattern          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescription       = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["'](.*?)["']`)
	metaOGDescription     = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:description["'][^>]+content=["'](.*?)["']`)
	errNoExtractableText  = errors.New("no title or description found")
	errContentNotTextual  = errors.New("content is not textual")
	errBodyBelowThreshold = errors.New("extracted body below minimum length")
)

// JSが無いと本文を出さないページの典型文言。検出時は Jina Reader の閾値を緩めます。
var jsWallMarkers = []string{
	"enable javascript",
	"javascript is required",
	"javascriptを有効",
	"javascript が無効",
	"please enable javascript",
}

// articleStrategy は外部リンク先を取得して本文を抽出します。
// 可読化抽出 → Jina Reader → メタデータの順に粗くなっていきます。
type articleStrategy struct {
	client       *http.Client
	jinaFallback bool
	jinaBaseURL  string
}

func (s *articleStrategy) applies(ref briefing.PostRef) bool {
	if ref.Kind != briefing.RefKindLink {
		return false
	}
	return strings.HasPrefix(ref.URL, "http://") || strings.HasPrefix(ref.URL, "https://")
}

func (s *articleStrategy) extract(ctx context.Context, ref briefing.PostRef) (*briefing.Material, []string, error) {
	body, finalURL, err := s.fetch(ctx, ref.URL)
	if err != nil {
		return nil, nil, err
	}

	mtype := mimetype.Detect(body)
	if !isTextual(mtype) {
		return nil, nil, &skipError{
			reason: briefing.SkipUnsupportedSource,
			err:    fmt.Errorf("%w: %s", errContentNotTextual, mtype.String()),
		}
	}

	if !mtype.Is("text/html") {
		content := compactText(string(body), maxContentChars)
		if utf8.RuneCountInString(content) <= minArticleRunes {
			return nil, nil, &skipError{reason: briefing.SkipEmptyBody, err: errBodyBelowThreshold}
		}
		return s.material(briefing.MaterialArticle, finalURL, finalURL, content, "plain_text", ref), nil, nil
	}

	html := string(body)
	if material := s.extractReadable(body, finalURL, ref); material != nil {
		return material, nil, nil
	}

	if s.jinaFallback {
		threshold := minReaderRunes
		if looksLikeJSWall(html) {
			threshold = minArticleRunes
		}
		if text := s.fetchJina(ctx, finalURL); utf8.RuneCountInString(text) > threshold {
			return s.material(briefing.MaterialArticle, finalURL, finalURL, text, "jina_reader", ref), nil, nil
		}
	}

	material, err := s.metadataFallback(html, finalURL, ref)
	if err != nil {
		return nil, nil, err
	}
	return material, nil, nil
}

func (s *articleStrategy) fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", &skipError{reason: briefing.SkipUnsupportedSource, err: err}
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", &skipError{reason: briefing.SkipFetchFailed, err: err}
	}
	defer resp.Body.Close()

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &skipError{
			reason: classifyStatus(resp.StatusCode),
			err:    fmt.Errorf("fetch returned %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", &skipError{reason: briefing.SkipFetchFailed, err: err}
	}
	return body, finalURL, nil
}

// extractReadable は可読化抽出で本文を取り出します。閾値未満なら nil を返して次の経路に進みます。
func (s *articleStrategy) extractReadable(body []byte, finalURL string, ref briefing.PostRef) *briefing.Material {
	parsed, err := nurl.Parse(finalURL)
	if err != nil {
		return nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil
	}

	content := compactText(article.TextContent, maxContentChars)
	if utf8.RuneCountInString(content) <= minArticleRunes {
		return nil
	}
	title := compactText(article.Title, maxTitleChars)
	if title == "" {
		title = finalURL
	}
	return s.material(briefing.MaterialArticle, title, finalURL, content, "readability", ref)
}

// fetchJina は Jina Reader 経由でレンダリング済み本文を取得します。失敗時は空文字を返します。
func (s *articleStrategy) fetchJina(ctx context.Context, pageURL string) string {
	base := s.jinaBaseURL
	if base == "" {
		base = defaultJinaBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ""
	}
	return compactText(string(body), maxContentChars)
}

// metadataFallback は <title> とメタ概要だけで最低限の素材を組み立てます。
func (s *articleStrategy) metadataFallback(html, finalURL string, ref briefing.PostRef) (*briefing.Material, error) {
	title := firstGroup(titlePattern, html)
	description := firstGroup(metaDescription, html)
	if description == "" {
		description = firstGroup(metaOGDescription, html)
	}

	if title == "" && description == "" {
		return nil, &skipError{reason: briefing.SkipEmptyBody, err: errNoExtractableText}
	}
	if title == "" {
		title = finalURL
	}
	if description == "" {
		description = "本文抽出に失敗したため概要のみ。"
	}
	return s.material(
		briefing.MaterialArticle,
		compactText(title, maxTitleChars),
		finalURL,
		compactText(description, maxDescriptionChars),
		"metadata",
		ref,
	), nil
}

func (s *articleStrategy) material(kind briefing.MaterialKind, title, url, content, method string, ref briefing.PostRef) *briefing.Material {
	return &briefing.Material{
		Kind:      kind,
		Title:     title,
		URL:       url,
		TweetText: compactText(ref.TweetText, maxContentChars),
		Content:   content,
		Method:    method,
	}
}

func isTextual(m *mimetype.MIME) bool {
	for t := m; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return true
		}
	}
	return false
}

func looksLikeJSWall(html string) bool {
	lowered := strings.ToLower(html)
	for _, marker := range jsWallMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func firstGroup(pattern *regexp.Regexp, html string) string {
	match := pattern.FindStringSubmatch(html)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}
