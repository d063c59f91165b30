// Package storage は音声ファイルの保存先を提供します。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage は名前付きバイト列を永続化し、取得用の参照を返します。
type Storage interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// Local はローカルファイルシステムへ保存する Storage 実装です。
// 返す参照は配信用ベースURLにキーを連結したパスになります。
type Local struct {
	baseDir string
	baseURL string
}

// NewLocal は Local を作成します。baseDir は保存先ディレクトリ、
// baseURL は参照の前に付ける配信パス(例: /static/audio)です。
func NewLocal(baseDir, baseURL string) *Local {
	return &Local{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Store はキー名でデータを書き込み、配信用の参照を返します。
func (l *Local) Store(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	path := filepath.Join(l.baseDir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return l.baseURL + "/" + key, nil
}

// validateKey はディレクトリを抜け出すようなキーを拒否します。
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage key is empty")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid storage key: %s", key)
	}
	return nil
}
