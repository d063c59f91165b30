package episodes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

// MySQLStore はMySQLにエピソードを保存する Store 実装です。
// DSN には parseTime=true を指定してください。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore は接続確認とテーブル作成まで済ませた MySQLStore を返します。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open episodes database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to episodes database: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) ensureSchema(ctx context.Context) error {
	stmt := `
		CREATE TABLE IF NOT EXISTS episodes (
		  id CHAR(36) NOT NULL PRIMARY KEY,
		  script MEDIUMTEXT NOT NULL,
		  audio_path VARCHAR(512) NOT NULL DEFAULT '',
		  source_urls TEXT NOT NULL,
		  status VARCHAR(16) NOT NULL,
		  skipped TEXT NOT NULL,
		  created_at DATETIME(6) NOT NULL
		)
`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create episodes table: %w", err)
	}
	return nil
}

// Create はエピソードの下書きを保存します。
func (s *MySQLStore) Create(ctx context.Context, episode *briefing.Episode) error {
	if episode == nil || episode.ID == "" {
		return fmt.Errorf("episode id is required")
	}

	sourceURLs, err := json.Marshal(episode.SourceURLs)
	if err != nil {
		return fmt.Errorf("failed to encode source urls: %w", err)
	}
	skipped, err := json.Marshal(episode.Skipped)
	if err != nil {
		return fmt.Errorf("failed to encode skip records: %w", err)
	}

	stmt := `
		INSERT INTO episodes (id, script, audio_path, source_urls, status, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
`
	_, err = s.db.ExecContext(ctx, stmt,
		episode.ID,
		episode.Script,
		episode.AudioPath,
		string(sourceURLs),
		episode.Status,
		string(skipped),
		episode.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert episode %s: %w", episode.ID, err)
	}
	return nil
}

// Finalize は音声パスを記録し、状態を done にします。
func (s *MySQLStore) Finalize(ctx context.Context, id, audioPath string) error {
	stmt := `UPDATE episodes SET audio_path = ?, status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, stmt, audioPath, briefing.EpisodeStatusDone, id)
	if err != nil {
		return fmt.Errorf("failed to finalize episode %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get はエピソードを読み出します。
func (s *MySQLStore) Get(ctx context.Context, id string) (*briefing.Episode, error) {
	query := `
		SELECT id, script, audio_path, source_urls, status, skipped, created_at
		FROM episodes
		WHERE id = ?
`
	row := s.db.QueryRowContext(ctx, query, id)

	var episode briefing.Episode
	var sourceURLs, skipped string
	err := row.Scan(
		&episode.ID,
		&episode.Script,
		&episode.AudioPath,
		&sourceURLs,
		&episode.Status,
		&skipped,
		&episode.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read episode %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(sourceURLs), &episode.SourceURLs); err != nil {
		return nil, fmt.Errorf("failed to decode source urls: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &episode.Skipped); err != nil {
		return nil, fmt.Errorf("failed to decode skip records: %w", err)
	}
	return &episode, nil
}

// Close はデータベース接続を閉じます。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
