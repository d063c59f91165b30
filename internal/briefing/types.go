// Package briefing は音声ブリーフィング生成のドメイン型を提供します。
package briefing

import (
	"strings"
	"time"
)

// LikedPost は「いいね」一覧から取得した投稿1件です。
type LikedPost struct {
	ID        string   `json:"tweet_id"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"created_at,omitempty"`
	URLs      []string `json:"urls"`
}

// RefKind は参照の種別を表します。
type RefKind string

const (
	// RefKindLink は投稿に含まれる外部リンクを辿る参照です。
	RefKindLink RefKind = "link"
	// RefKindPost は投稿本文そのものを素材にする参照です。
	RefKindPost RefKind = "post"
)

// PostRef は処理対象となる投稿参照1件です。
type PostRef struct {
	PostID    string  `json:"post_id"`
	URL       string  `json:"url"`
	TweetText string  `json:"tweet_text,omitempty"`
	Kind      RefKind `json:"kind"`
}

// MaterialKind は素材の種別を表します。
type MaterialKind string

const (
	MaterialArticle     MaterialKind = "article"
	MaterialPostText    MaterialKind = "post_text"
	MaterialPostComment MaterialKind = "post_comment"
)

// Material は抽出に成功した素材1件です。生成後は変更しません。
type Material struct {
	Kind      MaterialKind `json:"kind"`
	Title     string       `json:"title"`
	URL       string       `json:"url"`
	TweetText string       `json:"tweet_text,omitempty"`
	Content   string       `json:"content"`
	Method    string       `json:"method"`
}

// SkipReason は素材化できなかった理由の分類です。
type SkipReason string

const (
	SkipAuthExpired       SkipReason = "auth_expired"
	SkipForbidden         SkipReason = "forbidden"
	SkipNotFound          SkipReason = "not_found"
	SkipFetchFailed       SkipReason = "fetch_failed"
	SkipEmptyBody         SkipReason = "empty_body"
	SkipUnsupportedSource SkipReason = "unsupported_source"
)

// Skip は素材化できなかった参照1件の記録です。
type Skip struct {
	URL    string     `json:"url"`
	Reason SkipReason `json:"reason"`
}

// Outcome は参照1件の抽出結果です。Material と Skip のどちらか一方を持ちます。
type Outcome struct {
	Material *Material
	Skip     *Skip
	// Notes は warning レベルで記録する補足メッセージです。
	Notes []string
}

// エピソードの保存状態。
const (
	EpisodeStatusProcessing = "processing"
	EpisodeStatusDone       = "done"
)

// Episode は完了したブリーフィングの成果物です。
type Episode struct {
	ID         string    `json:"id"`
	Script     string    `json:"script"`
	AudioPath  string    `json:"audio_path"`
	SourceURLs []string  `json:"source_urls"`
	Status     string    `json:"status"`
	Skipped    []Skip    `json:"skipped"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone はエピソードの複製を返します。
func (e *Episode) Clone() *Episode {
	if e == nil {
		return nil
	}
	out := *e
	out.SourceURLs = append([]string(nil), e.SourceURLs...)
	out.Skipped = append([]Skip(nil), e.Skipped...)
	return &out
}

// Result は完了ジョブの結果ペイロードです。
type Result struct {
	Episode    *Episode   `json:"episode"`
	Materials  []Material `json:"materials"`
	Skipped    []Skip     `json:"skipped"`
	LikedCount int        `json:"liked_count"`
	URLCount   int        `json:"url_count"`
}

// Clone は結果の複製を返します。
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Episode = r.Episode.Clone()
	out.Materials = append([]Material(nil), r.Materials...)
	out.Skipped = append([]Skip(nil), r.Skipped...)
	return &out
}

// BuildRefs は「いいね」一覧を処理対象の参照リストに変換します。
// 外部リンクを含む投稿はリンクごとに1参照（重複URLは除外）、
// リンクを含まない投稿は本文そのものを素材にする参照になります。
func BuildRefs(posts []LikedPost) []PostRef {
	seen := make(map[string]struct{})
	var refs []PostRef
	for _, p := range posts {
		text := strings.TrimSpace(p.Text)
		if len(p.URLs) > 0 {
			for _, u := range p.URLs {
				if _, ok := seen[u]; ok {
					continue
				}
				seen[u] = struct{}{}
				refs = append(refs, PostRef{
					PostID:    p.ID,
					URL:       u,
					TweetText: text,
					Kind:      RefKindLink,
				})
			}
			continue
		}
		if p.ID == "" || text == "" {
			continue
		}
		refs = append(refs, PostRef{
			PostID:    p.ID,
			URL:       "https://x.com/i/web/status/" + p.ID,
			TweetText: text,
			Kind:      RefKindPost,
		})
	}
	return refs
}

// SourceURLs は参照リストのURLを入力順のまま返します。
func SourceURLs(refs []PostRef) []string {
	urls := make([]string, len(refs))
	for i, ref := range refs {
		urls[i] = ref.URL
	}
	return urls
}

// CountLinkRefs は外部リンク参照の件数を返します。
func CountLinkRefs(refs []PostRef) int {
	n := 0
	for _, ref := range refs {
		if ref.Kind == RefKindLink {
			n++
		}
	}
	return n
}
