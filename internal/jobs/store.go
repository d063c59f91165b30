package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound は指定されたジョブが存在しないことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrTerminal は終端状態のジョブへの更新を表します。
	ErrTerminal = errors.New("job already terminal")
)

// Store はジョブレコードの保存先です。
// Update は1呼び出しごとにアトミックに適用され、
// 終端状態のレコードに対しては ErrTerminal を返します。
type Store interface {
	Create(ctx context.Context) (*Record, error)
	Get(ctx context.Context, jobID string) (*Record, error)
	Update(ctx context.Context, jobID string, mutate func(*Record)) error
}

// MemoryStore はプロセス内メモリにジョブ状態を保持します。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Create は queued 状態の新規レコードを作成します。
func (s *MemoryStore) Create(ctx context.Context) (*Record, error) {
	record := newRecord()
	s.mu.Lock()
	s.records[record.JobID] = record
	s.mu.Unlock()
	return record.Clone(), nil
}

// Get はレコードの複製を返します。
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Update は mutate を適用します。
func (s *MemoryStore) Update(ctx context.Context, jobID string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return ErrNotFound
	}
	if record.Terminal() {
		return ErrTerminal
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func newRecord() *Record {
	now := time.Now().UTC()
	return &Record{
		JobID:     uuid.NewString(),
		Status:    StatusQueued,
		Progress:  0,
		Message:   "queued",
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
