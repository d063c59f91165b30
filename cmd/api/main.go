// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/config"
	"github.com/YU-SUKETAKAHASHI/ListenLater/internal/pipeline"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// 音声ファイルの保存先を用意して静的配信パスにマウント
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		log.Fatalf("Failed to create audio dir: %v", err)
	}
	router.Static(cfg.AudioBaseURL, cfg.AudioDir)

	// パイプライン一式の組み立て
	service, likes, err := setupPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// ルーティングの設定
	setupRoutes(router, service, likes)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "listenlater-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, service *pipeline.Service, likes likesLister) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.GET("/likes", listLikesHandler(likes))

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("/create", createJobHandler(service))
			jobRoutes.GET("/:id", jobStatusHandler(service))
		}
	}
}
