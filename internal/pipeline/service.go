// Package pipeline はブリーフィング生成ジョブの実行を統括します。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/jobs"
)

const (
	defaultConcurrency = 3
	defaultMinMaterial = 1
)

// LikesSource は「いいね」した投稿の一覧を取得します。
type LikesSource interface {
	LikedPosts(ctx context.Context, count int) ([]briefing.LikedPost, error)
}

// SourceExtractor は参照1件を素材またはスキップ記録に解決します。
type SourceExtractor interface {
	Extract(ctx context.Context, ref briefing.PostRef) briefing.Outcome
}

// ScriptComposer は素材一式からナレーション原稿を生成します。
type ScriptComposer interface {
	ComposeScript(ctx context.Context, materials []briefing.Material) (string, error)
}

// SpeechSynthesizer は原稿を音声データに変換します。
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, script string) ([]byte, error)
}

// AudioStorage は音声データを保存し、配信用の参照を返します。
type AudioStorage interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// EpisodeArchive はエピソードの保存先です。
type EpisodeArchive interface {
	Create(ctx context.Context, episode *briefing.Episode) error
	Finalize(ctx context.Context, id, audioPath string) error
	Get(ctx context.Context, id string) (*briefing.Episode, error)
}

// Deps はパイプラインが依存する外部コンポーネント一式です。
type Deps struct {
	Store     jobs.Store
	Likes     LikesSource
	Extractor SourceExtractor
	Composer  ScriptComposer
	Speech    SpeechSynthesizer
	Audio     AudioStorage
	Episodes  EpisodeArchive
}

// Options はパイプラインの動作設定です。
type Options struct {
	// ExtractConcurrency は取得の同時実行数です。0以下の場合は3。
	ExtractConcurrency int
	// MinMaterials は原稿生成に進むために必要な素材数です。0以下の場合は1。
	MinMaterials int
}

// Service はジョブの作成・参照とパイプライン実行を提供します。
// ジョブ記録への書き込みはこの Service だけが行います。
type Service struct {
	store        jobs.Store
	likes        LikesSource
	extractor    SourceExtractor
	composer     ScriptComposer
	speech       SpeechSynthesizer
	audio        AudioStorage
	episodes     EpisodeArchive
	concurrency  int
	minMaterials int
	logger       *log.Logger
}

// New は Service を作成します。依存が欠けている場合はエラーを返します。
func New(deps Deps, opts Options, logger *log.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: job store is required")
	case deps.Likes == nil:
		return nil, errors.New("pipeline: likes source is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: source extractor is required")
	case deps.Composer == nil:
		return nil, errors.New("pipeline: script composer is required")
	case deps.Speech == nil:
		return nil, errors.New("pipeline: speech synthesizer is required")
	case deps.Audio == nil:
		return nil, errors.New("pipeline: audio storage is required")
	case deps.Episodes == nil:
		return nil, errors.New("pipeline: episode archive is required")
	}

	concurrency := opts.ExtractConcurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	minMaterials := opts.MinMaterials
	if minMaterials < 1 {
		minMaterials = defaultMinMaterial
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:        deps.Store,
		likes:        deps.Likes,
		extractor:    deps.Extractor,
		composer:     deps.Composer,
		speech:       deps.Speech,
		audio:        deps.Audio,
		episodes:     deps.Episodes,
		concurrency:  concurrency,
		minMaterials: minMaterials,
		logger:       logger,
	}, nil
}

// CreateJob は「いいね」一覧を取得してジョブを登録し、パイプラインを別ゴルーチンで開始します。
// 一覧の取得に失敗した場合はジョブを作らず、エラーをそのまま呼び出し元に返します。
func (s *Service) CreateJob(ctx context.Context, count int) (*jobs.Record, error) {
	liked, err := s.likes.LikedPosts(ctx, count)
	if err != nil {
		return nil, err
	}
	refs := briefing.BuildRefs(liked)

	record, err := s.store.Create(ctx)
	if err != nil {
		return nil, err
	}

	// 実行はリクエストから切り離します。キャンセルもリクエスト側に引きずられません。
	go s.run(context.Background(), record.JobID, len(liked), refs)
	return record, nil
}

// GetJob はジョブ記録の現在のスナップショットを返します。
func (s *Service) GetJob(ctx context.Context, jobID string) (*jobs.Record, error) {
	return s.store.Get(ctx, jobID)
}

func (s *Service) run(ctx context.Context, jobID string, likedCount int, refs []briefing.PostRef) {
	if err := s.execute(ctx, jobID, likedCount, refs); err != nil {
		s.fail(ctx, jobID, err)
	}
}

func (s *Service) execute(ctx context.Context, jobID string, likedCount int, refs []briefing.PostRef) error {
	s.update(ctx, jobID, func(r *jobs.Record) {
		r.Status = jobs.StatusRunning
		r.AdvanceProgress(10)
		r.Message = "Acquiring source content"
		r.AddEvent(StageAcquisition, jobs.EventInfo, "start", map[string]any{
			"liked_count": likedCount,
			"ref_count":   len(refs),
		})
	})

	materials, skips, err := s.acquire(ctx, jobID, refs)
	if err != nil {
		return err
	}

	script, err := s.composeScript(ctx, jobID, materials)
	if err != nil {
		return err
	}

	result, err := s.produceEpisode(ctx, jobID, script, refs, materials, skips, likedCount)
	if err != nil {
		return err
	}

	s.update(ctx, jobID, func(r *jobs.Record) {
		r.Status = jobs.StatusSucceeded
		r.AdvanceProgress(100)
		r.Message = "Completed"
		r.Result = result
		r.AddEvent("completed", jobs.EventInfo, "job_done", map[string]any{
			"episode_id": result.Episode.ID,
		})
	})
	return nil
}

// acquire は参照ごとの抽出を上限付きで並列実行します。
// 1件の失敗はスキップ記録になるだけで、ステージ全体は参照が空の場合にのみ失敗します。
func (s *Service) acquire(ctx context.Context, jobID string, refs []briefing.PostRef) ([]briefing.Material, []briefing.Skip, error) {
	if len(refs) == 0 {
		return nil, nil, newStageError(StageAcquisition, "no processable liked posts found", nil)
	}

	total := len(refs)
	outcomes := make([]briefing.Outcome, total)
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var completed atomic.Int64

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref briefing.PostRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = s.extractor.Extract(ctx, ref)

			n := completed.Add(1)
			s.update(ctx, jobID, func(r *jobs.Record) {
				r.AdvanceProgress(10 + int(30*n)/total)
				r.Message = fmt.Sprintf("Fetching source %d/%d", n, total)
			})
		}(i, ref)
	}
	wg.Wait()

	// イベントは完了順ではなく入力順で記録します。
	s.update(ctx, jobID, func(r *jobs.Record) {
		for i, outcome := range outcomes {
			ref := refs[i]
			for _, note := range outcome.Notes {
				r.AddEvent(StageAcquisition, jobs.EventWarning, note, map[string]any{"url": ref.URL})
			}
			switch {
			case outcome.Material != nil:
				r.AddEvent(StageAcquisition, jobs.EventInfo, "material extracted", map[string]any{
					"url":    ref.URL,
					"method": outcome.Material.Method,
				})
			case outcome.Skip != nil:
				r.AddEvent(StageAcquisition, jobs.EventWarning, "source skipped", map[string]any{
					"url":    outcome.Skip.URL,
					"reason": string(outcome.Skip.Reason),
				})
			}
		}
		r.AdvanceProgress(40)
		r.Message = "Source content acquired"
	})

	materials := make([]briefing.Material, 0, total)
	skips := make([]briefing.Skip, 0)
	for _, outcome := range outcomes {
		switch {
		case outcome.Material != nil:
			materials = append(materials, *outcome.Material)
		case outcome.Skip != nil:
			skips = append(skips, *outcome.Skip)
		}
	}
	return materials, skips, nil
}

// composeScript は素材数の下限を確認してから、生成呼び出しを1回だけ行います。
func (s *Service) composeScript(ctx context.Context, jobID string, materials []briefing.Material) (string, error) {
	if len(materials) == 0 {
		return "", newStageError(StageScript, "no usable content could be extracted", nil)
	}
	if len(materials) < s.minMaterials {
		return "", newStageError(StageScript,
			fmt.Sprintf("usable content below minimum (%d < %d)", len(materials), s.minMaterials), nil)
	}

	s.update(ctx, jobID, func(r *jobs.Record) {
		r.Message = "Composing narration script"
		r.AddEvent(StageScript, jobs.EventInfo, "start", map[string]any{
			"material_count": len(materials),
		})
	})

	script, err := s.composer.ComposeScript(ctx, materials)
	if err != nil {
		return "", newStageError(StageScript, "script generation failed", err)
	}
	if strings.TrimSpace(script) == "" {
		return "", newStageError(StageScript, "script generation returned empty text", nil)
	}

	s.update(ctx, jobID, func(r *jobs.Record) {
		r.AdvanceProgress(70)
		r.Message = "Narration script ready"
		r.AddEvent(StageScript, jobs.EventInfo, "done", map[string]any{
			"script_chars": len([]rune(script)),
		})
	})
	return script, nil
}

// produceEpisode はエピソードの保存、音声合成、音声の保存までを行います。
func (s *Service) produceEpisode(ctx context.Context, jobID, script string, refs []briefing.PostRef, materials []briefing.Material, skips []briefing.Skip, likedCount int) (*briefing.Result, error) {
	s.update(ctx, jobID, func(r *jobs.Record) {
		r.AdvanceProgress(80)
		r.Message = "Saving episode draft"
	})

	episode := &briefing.Episode{
		ID:         uuid.NewString(),
		Script:     script,
		SourceURLs: briefing.SourceURLs(refs),
		Status:     briefing.EpisodeStatusProcessing,
		Skipped:    skips,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.episodes.Create(ctx, episode); err != nil {
		return nil, newStageError(StageAudio, "episode persistence failed", err)
	}

	s.update(ctx, jobID, func(r *jobs.Record) {
		r.AdvanceProgress(90)
		r.Message = "Rendering speech"
		r.AddEvent(StageAudio, jobs.EventInfo, "episode draft saved", map[string]any{
			"episode_id": episode.ID,
		})
	})

	audio, err := s.speech.Synthesize(ctx, script)
	if err != nil {
		return nil, newStageError(StageAudio, "speech synthesis failed", err)
	}
	audioPath, err := s.audio.Store(ctx, episode.ID+".mp3", audio)
	if err != nil {
		return nil, newStageError(StageAudio, "audio persistence failed", err)
	}

	if err := s.episodes.Finalize(ctx, episode.ID, audioPath); err != nil {
		return nil, newStageError(StageAudio, "episode finalization failed", err)
	}
	final, err := s.episodes.Get(ctx, episode.ID)
	if err != nil {
		return nil, newStageError(StageAudio, "episode lookup failed", err)
	}

	return &briefing.Result{
		Episode:    final,
		Materials:  materials,
		Skipped:    skips,
		LikedCount: likedCount,
		URLCount:   briefing.CountLinkRefs(refs),
	}, nil
}

// fail はエラーをステージ情報付きの終了状態に変換します。進捗はそのまま残します。
func (s *Service) fail(ctx context.Context, jobID string, err error) {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		stageErr = newStageError("unknown", "internal pipeline failure", err)
	}
	s.logger.Printf("job %s failed at %s: %v", jobID, stageErr.Stage, err)

	s.update(ctx, jobID, func(r *jobs.Record) {
		r.Status = jobs.StatusFailed
		r.Message = "Failed"
		r.FailureStage = stageErr.Stage
		r.Error = stageErr.Message
		r.AddEvent(stageErr.Stage, jobs.EventError, "job_failed", map[string]any{
			"reason": stageErr.Message,
		})
	})
}

// update は記録の更新を適用します。保存に失敗してもパイプラインは止めず、ログに残します。
func (s *Service) update(ctx context.Context, jobID string, mutate func(*jobs.Record)) {
	if err := s.store.Update(ctx, jobID, mutate); err != nil {
		s.logger.Printf("job %s: failed to update record: %v", jobID, err)
	}
}
