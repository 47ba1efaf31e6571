package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"studypool-backend/internal/config"
	"studypool-backend/internal/database"
	"studypool-backend/internal/logger"
	"studypool-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// 데이터베이스 연결
	dbCfg := database.LoadConfig()
	db, err := database.Connect(dbCfg, zlog)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	if err := database.Ping(ctx, db); err != nil {
		zlog.Fatal("database ping failed", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", dbCfg.Driver))

	// 서버 생성 및 설정
	srv := server.New(ctx, cfg, db, zlog)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		zlog.Fatal("server failed to start", zap.Error(err))
	}
}
