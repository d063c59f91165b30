package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/xapi"
)

type stubSource struct {
	text  *xapi.PostText
	err   error
	calls []string
}

func (s *stubSource) FullText(ctx context.Context, postID string) (*xapi.PostText, error) {
	s.calls = append(s.calls, postID)
	if s.err != nil {
		return nil, s.err
	}
	return s.text, nil
}

func longParagraph() string {
	return strings.Repeat("クラウド基盤の運用では観測性の設計がそのまま障害対応の速度を決めることになる。", 20)
}

func TestExtractPostRefPrefersExtendedText(t *testing.T) {
	source := &stubSource{text: &xapi.PostText{
		Text:         "short version… https://t.co/abc",
		ExtendedText: "これは長文投稿の完全な本文です。" + longParagraph(),
	}}
	extractor := NewExtractor(source, Config{})

	ref := briefing.PostRef{PostID: "123", URL: "https://x.com/i/web/status/123", TweetText: "これは長文投稿", Kind: briefing.RefKindPost}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Kind != briefing.MaterialPostText {
		t.Errorf("Kind = %q", outcome.Material.Kind)
	}
	if outcome.Material.Method != MethodFullText {
		t.Errorf("Method = %q", outcome.Material.Method)
	}
	if outcome.Material.Title != "X投稿 123" {
		t.Errorf("Title = %q", outcome.Material.Title)
	}
	if !strings.HasPrefix(outcome.Material.Content, "これは長文投稿の完全な本文です。") {
		t.Errorf("Content should come from the extended text, got %q", outcome.Material.Content[:30])
	}
	if len(outcome.Notes) != 0 {
		t.Errorf("Notes = %v, want none", outcome.Notes)
	}
}

func TestExtractPostRefTruncationNote(t *testing.T) {
	source := &stubSource{text: &xapi.PostText{
		Text:      "途中で切れた本文… https://t.co/abc",
		Truncated: true,
	}}
	extractor := NewExtractor(source, Config{})

	ref := briefing.PostRef{PostID: "9", URL: "https://x.com/i/web/status/9", TweetText: "x", Kind: briefing.RefKindPost}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	found := false
	for _, note := range outcome.Notes {
		if strings.Contains(note, "truncated") {
			found = true
		}
	}
	if !found {
		t.Errorf("Notes = %v, want truncation warning", outcome.Notes)
	}
}

func TestExtractStatusLinkUsesPostID(t *testing.T) {
	source := &stubSource{text: &xapi.PostText{Text: "リンク先の投稿本文です。引用元よりもこちらを素材にします。"}}
	extractor := NewExtractor(source, Config{})

	ref := briefing.PostRef{
		PostID:    "111",
		URL:       "https://twitter.com/someone/status/987654",
		TweetText: "この投稿は必読",
		Kind:      briefing.RefKindLink,
	}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if len(source.calls) != 1 || source.calls[0] != "987654" {
		t.Errorf("FullText calls = %v, want [987654]", source.calls)
	}
	if outcome.Material.TweetText != "この投稿は必読" {
		t.Errorf("TweetText = %q, want commentary preserved", outcome.Material.TweetText)
	}
}

func TestExtractPostRefFallsBackToPostText(t *testing.T) {
	source := &stubSource{err: &xapi.APIError{StatusCode: http.StatusNotFound, Message: "gone"}}
	extractor := NewExtractor(source, Config{})

	ref := briefing.PostRef{PostID: "42", URL: "https://x.com/i/web/status/42", TweetText: "手元に残っている投稿本文", Kind: briefing.RefKindPost}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Method != "post_text" {
		t.Errorf("Method = %q, want post_text", outcome.Material.Method)
	}
	if outcome.Material.Content != "手元に残っている投稿本文" {
		t.Errorf("Content = %q", outcome.Material.Content)
	}
	if len(outcome.Notes) == 0 {
		t.Error("Notes empty, want fallback warning")
	}
}

func TestExtractPostRefClassifiesAuthError(t *testing.T) {
	source := &stubSource{err: &xapi.APIError{StatusCode: http.StatusUnauthorized, Message: "expired"}}
	extractor := NewExtractor(source, Config{})

	ref := briefing.PostRef{PostID: "42", URL: "https://x.com/i/web/status/42", Kind: briefing.RefKindPost}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Skip == nil {
		t.Fatalf("Skip = nil, material = %+v", outcome.Material)
	}
	if outcome.Skip.Reason != briefing.SkipAuthExpired {
		t.Errorf("Reason = %q, want auth_expired", outcome.Skip.Reason)
	}
}

func TestExtractArticleReadability(t *testing.T) {
	page := `<!DOCTYPE html>
<html><head><title>設計記事のタイトル</title></head>
<body>
<article>
<h1>設計記事のタイトル</h1>
<p>` + longParagraph() + `</p>
<p>` + longParagraph() + `</p>
<p>` + longParagraph() + `</p>
</article>
</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{})
	ref := briefing.PostRef{URL: server.URL + "/article", TweetText: "良記事", Kind: briefing.RefKindLink}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Method != "readability" {
		t.Errorf("Method = %q, want readability", outcome.Material.Method)
	}
	if outcome.Material.Kind != briefing.MaterialArticle {
		t.Errorf("Kind = %q", outcome.Material.Kind)
	}
	if !strings.Contains(outcome.Material.Title, "設計記事のタイトル") {
		t.Errorf("Title = %q", outcome.Material.Title)
	}
	if outcome.Material.TweetText != "良記事" {
		t.Errorf("TweetText = %q", outcome.Material.TweetText)
	}
}

func TestExtractArticleMetadataFallback(t *testing.T) {
	page := `<!DOCTYPE html>
<html><head>
<title>短いページ</title>
<meta name="description" content="ページ概要のテキストです。">
</head>
<body><p>本文はごく短い。</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{})
	ref := briefing.PostRef{URL: server.URL, Kind: briefing.RefKindLink}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Method != "metadata" {
		t.Errorf("Method = %q, want metadata", outcome.Material.Method)
	}
	if outcome.Material.Title != "短いページ" {
		t.Errorf("Title = %q", outcome.Material.Title)
	}
	if outcome.Material.Content != "ページ概要のテキストです。" {
		t.Errorf("Content = %q", outcome.Material.Content)
	}
}

func TestExtractArticleMetadataCannedDescription(t *testing.T) {
	page := `<html><head><title>タイトルのみ</title></head><body><p>短文。</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{})
	outcome := extractor.Extract(context.Background(), briefing.PostRef{URL: server.URL, Kind: briefing.RefKindLink})

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Content != "本文抽出に失敗したため概要のみ。" {
		t.Errorf("Content = %q, want canned description", outcome.Material.Content)
	}
}

func TestExtractArticleJinaFallback(t *testing.T) {
	var jinaPath string
	jina := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jinaPath = r.URL.Path
		w.Write([]byte(longParagraph()))
	}))
	defer jina.Close()

	page := `<html><head><title>JS required</title></head><body>Please enable JavaScript to view this page.</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{JinaFallback: true, JinaBaseURL: jina.URL})
	outcome := extractor.Extract(context.Background(), briefing.PostRef{URL: server.URL + "/walled", Kind: briefing.RefKindLink})

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Method != "jina_reader" {
		t.Errorf("Method = %q, want jina_reader", outcome.Material.Method)
	}
	if !strings.Contains(jinaPath, "/walled") {
		t.Errorf("jina request path = %q, want page url embedded", jinaPath)
	}
}

func TestExtractSkipClassification(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()

	cases := []struct {
		name string
		url  string
		want briefing.SkipReason
	}{
		{"not found", notFound.URL, briefing.SkipNotFound},
		{"forbidden", forbidden.URL, briefing.SkipForbidden},
		{"unreachable", "http://127.0.0.1:1/down", briefing.SkipFetchFailed},
	}

	extractor := NewExtractor(nil, Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := extractor.Extract(context.Background(), briefing.PostRef{URL: tc.url, Kind: briefing.RefKindLink})
			if outcome.Skip == nil {
				t.Fatalf("Skip = nil, material = %+v", outcome.Material)
			}
			if outcome.Skip.Reason != tc.want {
				t.Errorf("Reason = %q, want %q", outcome.Skip.Reason, tc.want)
			}
		})
	}
}

func TestExtractUnsupportedSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{})
	outcome := extractor.Extract(context.Background(), briefing.PostRef{URL: server.URL + "/doc.pdf", Kind: briefing.RefKindLink})

	if outcome.Skip == nil {
		t.Fatalf("Skip = nil, material = %+v", outcome.Material)
	}
	if outcome.Skip.Reason != briefing.SkipUnsupportedSource {
		t.Errorf("Reason = %q, want unsupported_source", outcome.Skip.Reason)
	}
}

func TestExtractEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><div>a</div></body></html>"))
	}))
	defer server.Close()

	extractor := NewExtractor(nil, Config{})
	outcome := extractor.Extract(context.Background(), briefing.PostRef{URL: server.URL, Kind: briefing.RefKindLink})

	if outcome.Skip == nil {
		t.Fatalf("Skip = nil, material = %+v", outcome.Material)
	}
	if outcome.Skip.Reason != briefing.SkipEmptyBody {
		t.Errorf("Reason = %q, want empty_body", outcome.Skip.Reason)
	}
}

func TestExtractLinkCommentaryFallback(t *testing.T) {
	extractor := NewExtractor(nil, Config{})
	ref := briefing.PostRef{
		URL:       "http://127.0.0.1:1/down",
		TweetText: "リンク切れだが投稿者の解説は残したい",
		Kind:      briefing.RefKindLink,
	}
	outcome := extractor.Extract(context.Background(), ref)

	if outcome.Material == nil {
		t.Fatalf("Material = nil, skip = %+v", outcome.Skip)
	}
	if outcome.Material.Kind != briefing.MaterialPostComment {
		t.Errorf("Kind = %q, want post_comment", outcome.Material.Kind)
	}
	if outcome.Material.Title != "X投稿コメント" {
		t.Errorf("Title = %q", outcome.Material.Title)
	}
	if outcome.Material.Method != "commentary" {
		t.Errorf("Method = %q", outcome.Material.Method)
	}
	if len(outcome.Notes) == 0 {
		t.Error("Notes empty, want fallback warning")
	}
}

func TestCompactText(t *testing.T) {
	in := "  行頭の空白\tタブ\n改行   連続スペース  "
	got := compactText(in, 0)
	if got != "行頭の空白 タブ 改行 連続スペース" {
		t.Errorf("compactText() = %q", got)
	}

	clipped := compactText(strings.Repeat("あ", 50), 10)
	if clipped != strings.Repeat("あ", 10) {
		t.Errorf("compactText() clipped = %q", clipped)
	}
}
