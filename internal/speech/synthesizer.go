// Package speech はナレーション原稿を音声データに変換します。
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini-tts"
	defaultVoice   = "alloy"
)

// Config は音声合成の設定です。ゼロ値のフィールドには既定値が入ります。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	HTTPClient *http.Client
}

// Synthesizer は外部の音声合成APIを呼び出してMP3バイト列を取得します。
type Synthesizer struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	client  *http.Client
}

// NewSynthesizer は Synthesizer を作成します。
func NewSynthesizer(cfg Config) *Synthesizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Synthesizer{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		voice:   voice,
		client:  client,
	}
}

// Synthesize は原稿をMP3の音声データに変換します。
func (s *Synthesizer) Synthesize(ctx context.Context, script string) ([]byte, error) {
	if s.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("script is empty")
	}

	payload := map[string]string{
		"model":           s.model,
		"voice":           s.voice,
		"input":           script,
		"response_format": "mp3",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("speech synthesis returned %d, body: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech synthesis returned no audio data")
	}
	return audio, nil
}
