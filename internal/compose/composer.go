// Package compose は素材一式からナレーション原稿を生成します。
package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultMode        = "CuriosityTalk"
	defaultTemperature = 0.7

	// 素材1件あたりプロンプトに載せる最大文字数。
	maxPromptChars = 12000
)

// 語り口ごとの指示。未知のモードは CuriosityTalk 扱いにします。
var modeSpecs = map[string]string{
	"QuickDigest":   "テンポを優先し、短めの往復で要点中心に進めてください。",
	"CuriosityTalk": "好奇心を刺激する問いを織り交ぜ、理解と発見のバランスを取ってください。",
	"DeepDive":      "背景と論点を丁寧に掘り下げ、少し長めに検討過程を示してください。",
}

const systemPrompt = "あなたは通勤中のリスナーに向けた音声ブリーフィングのナレーターです。" +
	"与えられた素材の内容を一人語りの日本語ナレーション原稿にまとめてください。" +
	"過度に要約せず、素材に書かれている事実や論点をそのまま伝えてください。" +
	"音声でそのまま読み上げられる文章だけを出力し、見出し・箇条書き・URL・記号の読み上げは避けてください。"

// Config は原稿生成の設定です。ゼロ値のフィールドには既定値が入ります。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Mode        string
	HTTPClient  *http.Client
}

// Composer は外部の文章生成APIを1回呼び出して原稿を作ります。
type Composer struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	mode        string
	client      *http.Client
}

// NewComposer は Composer を作成します。
func NewComposer(cfg Config) *Composer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	mode := cfg.Mode
	if mode == "" {
		mode = defaultMode
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Composer{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		mode:        mode,
		client:      client,
	}
}

// ComposeScript は全素材を1回の生成呼び出しに渡し、ナレーション原稿を返します。
func (c *Composer) ComposeScript(ctx context.Context, materials []briefing.Material) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("OPENAI_API_KEY is not set")
	}
	if len(materials) == 0 {
		return "", errors.New("no materials to compose")
	}

	payload := map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": c.buildPrompt(materials)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("generation returned %d, body: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("generation returned no choices")
	}

	script := strings.TrimSpace(result.Choices[0].Message.Content)
	if script == "" {
		return "", errors.New("generation returned empty text")
	}
	return script, nil
}

// buildPrompt は素材一覧を番号付きブロックで並べたユーザープロンプトを組み立てます。
func (c *Composer) buildPrompt(materials []briefing.Material) string {
	spec, ok := modeSpecs[c.mode]
	if !ok {
		spec = modeSpecs[defaultMode]
	}

	var b strings.Builder
	b.WriteString("語り口: ")
	b.WriteString(spec)
	b.WriteString("\n\n")

	for i, m := range materials {
		fmt.Fprintf(&b, "素材%d\n", i+1)
		fmt.Fprintf(&b, "種別: %s\n", m.Kind)
		fmt.Fprintf(&b, "タイトル: %s\n", m.Title)
		fmt.Fprintf(&b, "URL: %s\n", m.URL)
		if m.TweetText != "" {
			fmt.Fprintf(&b, "投稿者コメント:\n%s\n", clipRunes(m.TweetText, maxPromptChars))
		}
		fmt.Fprintf(&b, "抽出本文:\n%s\n\n", clipRunes(m.Content, maxPromptChars))
	}
	return strings.TrimSpace(b.String())
}

var promptWhitespace = regexp.MustCompile(`[ \t]+`)

func clipRunes(text string, limit int) string {
	compacted := strings.TrimSpace(promptWhitespace.ReplaceAllString(text, " "))
	runes := []rune(compacted)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return compacted
}
