// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/edgegate/internal/auth"
	"github.com/hitoshi/edgegate/internal/config"
	"github.com/hitoshi/edgegate/internal/database"
	"github.com/hitoshi/edgegate/internal/gateway"
	"github.com/hitoshi/edgegate/internal/handler"
	"github.com/hitoshi/edgegate/internal/idp"
	"github.com/hitoshi/edgegate/internal/logger"
	"github.com/hitoshi/edgegate/internal/metrics"
	"github.com/hitoshi/edgegate/internal/middleware"
	"github.com/hitoshi/edgegate/internal/registry"
	"github.com/hitoshi/edgegate/internal/storage"
	"github.com/hitoshi/edgegate/internal/tokenproxy"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("idp_base_url", cfg.IdPBaseURL),
		slog.Bool("storage_enabled", cfg.StorageEnabled()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はゲートウェイサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. クライアントシークレットレジストリの初期化
	reg, cleanup, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// 2. メトリクスコレクターの初期化
	collector := metrics.NewCollector()

	// 3. IdPクライアントの初期化
	idpClient := idp.NewClient(idp.Config{
		BaseURL: cfg.IdPBaseURL,
		Observe: func(endpoint string, d time.Duration) {
			collector.RecordUpstreamLatency("idp_"+endpoint, d)
		},
	})

	// 4. ドメインコンポーネントの初期化
	validator := auth.NewValidator(idpClient, reg)
	proxy := tokenproxy.NewProxy(idpClient, reg)

	var storageGateway *gateway.Gateway
	if cfg.StorageEnabled() {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.StorageBucket,
			Region:          cfg.StorageRegion,
			Endpoint:        cfg.StorageEndpoint,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		storageGateway = gateway.NewGateway(store)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitStorage))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Validator:      validator,
		TokenProxy:     proxy,
		StorageGateway: storageGateway,
		RateLimiter:    rateLimiter,
		Metrics:        collector,
		Logger:         slog.Default(),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("gateway server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down gateway server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("gateway server stopped gracefully")
	return nil
}

// buildRegistry は設定に応じたSecretRegistryを構築する。
// DATABASE_URLが設定されている場合はPostgres、それ以外は環境変数注入の
// 静的マップを使用する。2つ目の戻り値は終了時のクリーンアップ関数。
func buildRegistry(cfg *config.Config) (registry.SecretRegistry, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Info("using static client secret registry",
			slog.Int("clients", len(cfg.ClientSecrets)),
		)
		return registry.NewStaticRegistry(cfg.ClientSecrets), func() {}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("using postgres client secret registry")
	return registry.NewPostgresRegistry(db), func() { db.Close() }, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
