// Package episodes は完成したエピソードの保存先を提供します。
package episodes

import (
	"context"
	"errors"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

// ErrNotFound は指定IDのエピソードが存在しないことを表します。
var ErrNotFound = errors.New("episode not found")

// Store はエピソードの永続化先です。
// Create で下書き(processing)を保存し、音声が出来たら Finalize で完成(done)にします。
type Store interface {
	Create(ctx context.Context, episode *briefing.Episode) error
	Finalize(ctx context.Context, id, audioPath string) error
	Get(ctx context.Context, id string) (*briefing.Episode, error)
}
