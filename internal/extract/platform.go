package extract

import (
	"context"
	"errors"
	"regexp"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

// MethodFullText は投稿全文APIで取得した素材の抽出経路名です。
const MethodFullText = "full_text_api"

var statusURLPattern = regexp.MustCompile(`https?://(?:x|twitter)\.com/.+?/status/(\d+)`)

// platformStrategy は投稿IDを使った全文取得を試みます。
// 長文投稿では既定の text が黙って短縮されるため、拡張本文を優先します。
type platformStrategy struct {
	source PostSource
}

func (s *platformStrategy) applies(ref briefing.PostRef) bool {
	if s.source == nil {
		return false
	}
	if ref.Kind == briefing.RefKindPost {
		return ref.PostID != ""
	}
	return statusURLPattern.MatchString(ref.URL)
}

func (s *platformStrategy) extract(ctx context.Context, ref briefing.PostRef) (*briefing.Material, []string, error) {
	postID := ref.PostID
	if ref.Kind == briefing.RefKindLink {
		match := statusURLPattern.FindStringSubmatch(ref.URL)
		if len(match) < 2 {
			return nil, nil, &skipError{reason: briefing.SkipUnsupportedSource, err: errors.New("no post id in url")}
		}
		postID = match[1]
	}

	text, err := s.source.FullText(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	content := text.ExtendedText
	if content == "" {
		content = text.Text
	}
	content = compactText(content, maxContentChars)
	if content == "" {
		return nil, nil, &skipError{reason: briefing.SkipEmptyBody, err: errors.New("post has no text")}
	}

	var notes []string
	if text.Truncated {
		notes = append(notes, "full text may be truncated")
	}

	material := &briefing.Material{
		Kind:    briefing.MaterialPostText,
		Title:   postTitle(postID),
		URL:     ref.URL,
		Content: content,
		Method:  MethodFullText,
	}
	// リンク先が別の投稿だった場合、いいねした投稿の本文はコメントとして残します。
	if ref.Kind == briefing.RefKindLink {
		material.TweetText = compactText(ref.TweetText, maxContentChars)
	}
	return material, notes, nil
}
