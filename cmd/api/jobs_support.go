package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/briefing"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/compose"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/config"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/episodes"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/extract"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/jobs"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/pipeline"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/speech"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/storage"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/xapi"
)

// count クエリの既定値と許容範囲。
const (
	defaultLikeCount = 5
	minLikeCount     = 1
	maxLikeCount     = 100
)

// likesLister は「いいね」一覧の取得口です。
type likesLister interface {
	LikedPosts(ctx context.Context, count int) ([]briefing.LikedPost, error)
}

// jobCreator はブリーフィング生成ジョブの発行口です。
type jobCreator interface {
	CreateJob(ctx context.Context, count int) (*jobs.Record, error)
}

// jobReader はジョブ記録の参照口です。
type jobReader interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Record, error)
}

// setupPipeline は設定からパイプライン一式を組み立てます。
// 返り値の *xapi.Client は /api/likes からも直接利用します。
func setupPipeline(cfg *config.Config) (*pipeline.Service, *xapi.Client, error) {
	client := xapi.NewClient(cfg.XBearerToken, cfg.XUserID, cfg.XAPIBaseURL, nil)

	extractor := extract.NewExtractor(client, extract.Config{
		Timeout:      time.Duration(cfg.ExtractTimeoutSeconds) * time.Second,
		JinaFallback: cfg.JinaReaderFallback,
		JinaBaseURL:  cfg.JinaReaderBaseURL,
	})

	composer := compose.NewComposer(compose.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.ScriptModel,
		Temperature: cfg.ScriptTemperature,
		Mode:        cfg.NarrationMode,
	})

	synthesizer := speech.NewSynthesizer(speech.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
	})

	archive, err := setupEpisodes(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := setupJobStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	service, err := pipeline.New(pipeline.Deps{
		Store:     store,
		Likes:     client,
		Extractor: extractor,
		Composer:  composer,
		Speech:    synthesizer,
		Audio:     storage.NewLocal(cfg.AudioDir, cfg.AudioBaseURL),
		Episodes:  archive,
	}, pipeline.Options{
		ExtractConcurrency: cfg.ExtractConcurrency,
		MinMaterials:       cfg.MinMaterials,
	}, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return service, client, nil
}

// setupJobStore はジョブ記録ストアを組み立てます。Redis 未設定時はメモリ上に保持します。
func setupJobStore(cfg *config.Config) (jobs.Store, error) {
	if cfg.JobStoreRedisURL == "" {
		return jobs.NewMemoryStore(), nil
	}
	opt, err := redis.ParseURL(cfg.JobStoreRedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)
	var ttl time.Duration
	if cfg.JobExpireMinutes > 0 {
		ttl = time.Duration(cfg.JobExpireMinutes) * time.Minute
	}
	return jobs.NewRedisStore(redisClient, ttl), nil
}

// setupEpisodes はエピソードの保存先を組み立てます。DSN 未設定時はメモリ上に保持します。
func setupEpisodes(cfg *config.Config) (episodes.Store, error) {
	if cfg.EpisodesDSN == "" {
		return episodes.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return episodes.NewMySQLStore(ctx, cfg.EpisodesDSN)
}

// parseCountQuery は count クエリを検証付きで読み取ります。
// 不正な値の場合はエラーレスポンスを書き込み、ok=false を返します。
func parseCountQuery(c *gin.Context) (int, bool) {
	raw := c.Query("count")
	if raw == "" {
		return defaultLikeCount, true
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < minLikeCount || count > maxLikeCount {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "count は 1〜100 の整数で指定してください。",
		})
		return 0, false
	}
	return count, true
}

// respondUpstreamError は外部APIのエラーをステータスを保ってクライアントへ返します。
// 分類できないエラーは fallback のメッセージで 500 を返します。
func respondUpstreamError(c *gin.Context, err error, fallback string) {
	var apiErr *xapi.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    "UPSTREAM_ERROR",
			"message": apiErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": fallback,
	})
}

// listLikesHandler は「いいね」一覧を返すハンドラーを作成します。
func listLikesHandler(likes likesLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, ok := parseCountQuery(c)
		if !ok {
			return
		}

		posts, err := likes.LikedPosts(c.Request.Context(), count)
		if err != nil {
			respondUpstreamError(c, err, "いいね一覧の取得に失敗しました。")
			return
		}
		if posts == nil {
			posts = []briefing.LikedPost{}
		}

		c.JSON(http.StatusOK, gin.H{
			"count":           len(posts),
			"requested_count": count,
			"tweets":          posts,
		})
	}
}

// createJobHandler はブリーフィング生成ジョブを発行するハンドラーを作成します。
// いいね一覧の取得に失敗した場合はジョブを作らずエラーを返します。
func createJobHandler(creator jobCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, ok := parseCountQuery(c)
		if !ok {
			return
		}

		record, err := creator.CreateJob(c.Request.Context(), count)
		if err != nil {
			respondUpstreamError(c, err, "ジョブの作成に失敗しました。")
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"job_id": record.JobID,
			"status": record.Status,
		})
	}
}

// jobStatusHandler はジョブ記録を返すハンドラーを作成します。
func jobStatusHandler(reader jobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "job_id を指定してください。",
			})
			return
		}

		record, err := reader.GetJob(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "指定されたジョブは存在しません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}
