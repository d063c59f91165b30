// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// X API設定
	XBearerToken string // X APIのBearerトークン
	XUserID      string // いいね一覧を取得するユーザーID（空の場合は/users/meで解決）
	XAPIBaseURL  string // X APIのベースURL（テスト用の差し替え口）

	// OpenAI設定
	OpenAIAPIKey      string  // OpenAI APIキー（原稿生成と音声合成で共用）
	OpenAIBaseURL     string  // OpenAI APIのベースURL（テスト用の差し替え口）
	ScriptModel       string  // 原稿生成に使うモデル
	ScriptTemperature float64 // 原稿生成のtemperature
	NarrationMode     string  // 語り口 (QuickDigest, CuriosityTalk, DeepDive)
	TTSModel          string  // 音声合成に使うモデル
	TTSVoice          string  // 音声合成の声

	// 音声ファイル設定
	AudioDir     string // 音声ファイルの保存先ディレクトリ
	AudioBaseURL string // 音声ファイルの配信パス

	// ジョブ記録設定
	JobStoreRedisURL string // ジョブ記録用Redis接続URL（空の場合はメモリ保存）
	JobExpireMinutes int    // ジョブ記録の有効期限（分、0は無期限）

	// エピソード保存設定
	EpisodesDSN string // エピソード保存用MySQL DSN（空の場合はメモリ保存）

	// 抽出設定
	ExtractConcurrency    int    // 取得の同時実行数
	ExtractTimeoutSeconds int    // 取得1件あたりのタイムアウト（秒）
	MinMaterials          int    // 原稿生成に必要な最低素材数
	JinaReaderFallback    bool   // Jina Readerによる再取得を使うか
	JinaReaderBaseURL     string // Jina ReaderのベースURL
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// X API設定
		XBearerToken: getEnv("X_BEARER_TOKEN", getEnv("X_ACCESS_TOKEN", "")),
		XUserID:      getEnv("X_USER_ID", ""),
		XAPIBaseURL:  getEnv("X_API_BASE_URL", ""),

		// OpenAI設定
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		ScriptModel:       getEnv("OPENAI_SCRIPT_MODEL", "gpt-4o-mini"),
		ScriptTemperature: getEnvAsFloat("OPENAI_SCRIPT_TEMPERATURE", 0.7),
		NarrationMode:     getEnv("NARRATION_MODE", "CuriosityTalk"),
		TTSModel:          getEnv("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:          getEnv("OPENAI_TTS_VOICE", "alloy"),

		// 音声ファイル設定
		AudioDir:     getEnv("AUDIO_DIR", "./static/audio"),
		AudioBaseURL: getEnv("AUDIO_BASE_URL", "/static/audio"),

		// ジョブ記録設定
		JobStoreRedisURL: getEnv("JOB_STORE_REDIS_URL", ""),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 0),

		// エピソード保存設定
		EpisodesDSN: getEnv("EPISODES_DSN", ""),

		// 抽出設定
		ExtractConcurrency:    getEnvAsInt("EXTRACT_CONCURRENCY", 3),
		ExtractTimeoutSeconds: getEnvAsInt("EXTRACT_TIMEOUT_SECONDS", 20),
		MinMaterials:          getEnvAsInt("MIN_MATERIALS", 1),
		JinaReaderFallback:    getEnvAsBool("JINA_READER_FALLBACK", true),
		JinaReaderBaseURL:     getEnv("JINA_READER_BASE_URL", "https://r.jina.ai"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では外部APIの認証情報は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.XBearerToken == "" {
			return fmt.Errorf("X_BEARER_TOKEN is required in release mode")
		}
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
// "0"、"false"、"off" を偽として扱います。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if valueStr == "" {
		return defaultValue
	}
	switch valueStr {
	case "0", "false", "off":
		return false
	}
	return true
}
