package pipeline

import "fmt"

// パイプラインのステージ名。失敗時は failure_stage としてジョブ記録に残ります。
const (
	StageAcquisition = "content_acquisition"
	StageScript      = "script_synthesis"
	StageAudio       = "audio_synthesis"
)

// StageError はどのステージで失敗したかを運ぶエラーです。
// Message は利用者にそのまま見せられる要約で、生のエラーは Err に保持します。
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(stage, message string, err error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: err}
}
