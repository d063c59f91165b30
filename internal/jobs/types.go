// Package jobs はジョブレコードの型と保存先を提供します。
package jobs

import (
	"time"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// EventLevel はイベントの重要度を表します。
type EventLevel string

const (
	EventInfo    EventLevel = "info"
	EventWarning EventLevel = "warning"
	EventError   EventLevel = "error"
)

// Event はジョブ進行中に追記される構造化イベント1件です。
type Event struct {
	Stage   string         `json:"stage"`
	Level   EventLevel     `json:"level"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Record はジョブの現在状態を表します。
// status が done または error になったレコードは以後変更されません。
type Record struct {
	JobID        string           `json:"job_id"`
	Status       Status           `json:"status"`
	Progress     int              `json:"progress"`
	Message      string           `json:"message"`
	FailureStage string           `json:"failure_stage,omitempty"`
	Error        string           `json:"error,omitempty"`
	Events       []Event          `json:"events"`
	Result       *briefing.Result `json:"result,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Terminal はジョブが終端状態かどうかを返します。
func (r *Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// AdvanceProgress は進捗を前進方向にのみ更新します（0〜100に丸め）。
func (r *Record) AdvanceProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > r.Progress {
		r.Progress = percent
	}
}

// AddEvent はイベントを追記します。
func (r *Record) AddEvent(stage string, level EventLevel, message string, detail map[string]any) {
	r.Events = append(r.Events, Event{
		Stage:   stage,
		Level:   level,
		Message: message,
		Detail:  detail,
	})
}

// Clone はレコードの複製を返します。
func (r *Record) Clone() *Record {
	out := *r
	if r.Events != nil {
		out.Events = make([]Event, len(r.Events))
		copy(out.Events, r.Events)
		for i, ev := range r.Events {
			if ev.Detail == nil {
				continue
			}
			detail := make(map[string]any, len(ev.Detail))
			for k, v := range ev.Detail {
				detail[k] = v
			}
			out.Events[i].Detail = detail
		}
	}
	out.Result = r.Result.Clone()
	return &out
}
