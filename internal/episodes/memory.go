package episodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

// MemoryStore はプロセス内にエピソードを保持する Store 実装です。
// 永続化先が未設定の開発環境で使います。
type MemoryStore struct {
	mu       sync.RWMutex
	episodes map[string]*briefing.Episode
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{episodes: make(map[string]*briefing.Episode)}
}

// Create はエピソードの下書きを保存します。
func (s *MemoryStore) Create(ctx context.Context, episode *briefing.Episode) error {
	if episode == nil || episode.ID == "" {
		return fmt.Errorf("episode id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[episode.ID]; ok {
		return fmt.Errorf("episode %s already exists", episode.ID)
	}
	s.episodes[episode.ID] = episode.Clone()
	return nil
}

// Finalize は音声パスを記録し、状態を done にします。
func (s *MemoryStore) Finalize(ctx context.Context, id, audioPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	episode, ok := s.episodes[id]
	if !ok {
		return ErrNotFound
	}
	episode.AudioPath = audioPath
	episode.Status = briefing.EpisodeStatusDone
	return nil
}

// Get はエピソードの複製を返します。
func (s *MemoryStore) Get(ctx context.Context, id string) (*briefing.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	episode, ok := s.episodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return episode.Clone(), nil
}
