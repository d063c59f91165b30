// Package extract は参照先から素材テキストを取り出す抽出器を提供します。
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/xapi"
)

const (
	// 本文とみなす最小文字数(ルーン数)。これ未満は抽出失敗として扱います。
	minArticleRunes = 200
	// Jina Reader 経由の本文に要求する最小文字数。JSウォール検出時は minArticleRunes に緩めます。
	minReaderRunes = 300
	// 素材本文の上限文字数。
	maxContentChars = 10000

	defaultTimeout = 20 * time.Second
)

// PostSource は投稿本文の取得元です。
type PostSource interface {
	FullText(ctx context.Context, postID string) (*xapi.PostText, error)
}

// Config は抽出器の動作設定です。
type Config struct {
	// Timeout は取得1件あたりのHTTPタイムアウトです。0 の場合は 20 秒。
	Timeout time.Duration
	// JinaFallback が真のとき、本文抽出に失敗したページを Jina Reader で再取得します。
	JinaFallback bool
	// JinaBaseURL は Jina Reader のベースURLです。空の場合は https://r.jina.ai。
	JinaBaseURL string
}

// strategy は1つの取得経路を表します。優先順に試行されます。
type strategy interface {
	applies(ref briefing.PostRef) bool
	extract(ctx context.Context, ref briefing.PostRef) (*briefing.Material, []string, error)
}

// Extractor は参照1件を素材またはスキップ記録に解決します。状態を持ちません。
type Extractor struct {
	strategies []strategy
}

// NewExtractor は抽出器を作成します。source が nil の場合、
// 投稿全文の取得は行わず汎用スクレイプのみで抽出します。
func NewExtractor(source PostSource, cfg Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	return &Extractor{
		strategies: []strategy{
			&platformStrategy{source: source},
			&articleStrategy{
				client:       client,
				jinaFallback: cfg.JinaFallback,
				jinaBaseURL:  strings.TrimRight(cfg.JinaBaseURL, "/"),
			},
		},
	}
}

// Extract は参照1件から素材を取り出します。どの経路でも取り出せなかった場合は
// 投稿本文をコメント素材として使い、それも無ければ理由付きスキップを返します。
func (e *Extractor) Extract(ctx context.Context, ref briefing.PostRef) briefing.Outcome {
	var notes []string
	var lastErr error
	for _, s := range e.strategies {
		if !s.applies(ref) {
			continue
		}
		material, strategyNotes, err := s.extract(ctx, ref)
		notes = append(notes, strategyNotes...)
		if err != nil {
			lastErr = err
			continue
		}
		return briefing.Outcome{Material: material, Notes: notes}
	}
	return e.fallback(ref, notes, lastErr)
}

// fallback は全経路の失敗後に投稿本文だけで素材化を試みます。
func (e *Extractor) fallback(ref briefing.PostRef, notes []string, lastErr error) briefing.Outcome {
	text := compactText(ref.TweetText, maxContentChars)
	if text != "" {
		if ref.Kind == briefing.RefKindPost {
			notes = append(notes, "full text unavailable, using post text")
			return briefing.Outcome{
				Material: &briefing.Material{
					Kind:    briefing.MaterialPostText,
					Title:   postTitle(ref.PostID),
					URL:     ref.URL,
					Content: text,
					Method:  "post_text",
				},
				Notes: notes,
			}
		}
		notes = append(notes, "content extraction failed, using post commentary")
		return briefing.Outcome{
			Material: &briefing.Material{
				Kind:      briefing.MaterialPostComment,
				Title:     "X投稿コメント",
				URL:       ref.URL,
				TweetText: text,
				Content:   text,
				Method:    "commentary",
			},
			Notes: notes,
		}
	}
	return briefing.Outcome{
		Skip:  &briefing.Skip{URL: ref.URL, Reason: classifyError(lastErr)},
		Notes: notes,
	}
}

// skipError は分類済みのスキップ理由を運ぶ内部エラーです。
type skipError struct {
	reason briefing.SkipReason
	err    error
}

func (e *skipError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.err)
	}
	return string(e.reason)
}

func (e *skipError) Unwrap() error { return e.err }

// classifyError はエラーをスキップ理由に分類します。生の例外文字列は外に出しません。
func classifyError(err error) briefing.SkipReason {
	if err == nil {
		return briefing.SkipUnsupportedSource
	}
	var se *skipError
	if errors.As(err, &se) {
		return se.reason
	}
	var apiErr *xapi.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	return briefing.SkipFetchFailed
}

func classifyStatus(status int) briefing.SkipReason {
	switch status {
	case http.StatusUnauthorized:
		return briefing.SkipAuthExpired
	case http.StatusPaymentRequired, http.StatusForbidden:
		return briefing.SkipForbidden
	case http.StatusNotFound, http.StatusGone:
		return briefing.SkipNotFound
	}
	return briefing.SkipFetchFailed
}

func postTitle(postID string) string {
	if postID == "" {
		return "X投稿"
	}
	return "X投稿 " + postID
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// compactText は連続する空白を1つにまとめ、最大文字数に切り詰めます。
func compactText(text string, limit int) string {
	compacted := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	runes := []rune(compacted)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return compacted
}
