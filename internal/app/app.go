// Package app はアプリケーションの起動とワイヤリングを提供する。
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/carelink/internal/config"
	"github.com/hitoshi/carelink/internal/devserver"
	"github.com/hitoshi/carelink/internal/logger"
	"github.com/hitoshi/carelink/internal/metrics"
	"github.com/hitoshi/carelink/internal/middleware"
	"github.com/hitoshi/carelink/internal/security"
	"github.com/hitoshi/carelink/internal/session"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルは任意。存在しない場合は環境変数のみを使う
	_ = godotenv.Load()

	// 3. 環境変数から設定を読み込む
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
		port := os.Getenv("CARELINK_SERVER_PORT")
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
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandWatch:
		return runWatch(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はインメモリ開発サーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	// 1. メトリクスレジストリの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. ストレージとサービスの初期化
	store := devserver.NewStore()
	tokens := devserver.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	hub := devserver.NewHub(slog.Default(), collector)
	sanitizer := security.NewMessageSanitizer()

	// 3. ハンドラーとルーターの構築
	server := devserver.NewServer(store, tokens, hub, sanitizer, slog.Default())
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSend),
	)
	defer limiter.Stop()

	router := devserver.NewRouter(
		server, tokens, limiter, slog.Default(),
		cfg.CORSAllowedOrigin, metrics.Handler(registry),
	)

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("dev server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down dev server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("dev server stopped gracefully")
	return nil
}

// runWatch はクライアントコアをワイヤリングし、受信イベントを監視するモードで起動する。
// 永続化トークンがあればセッションを復元し、なければ環境変数の資格情報でログインする。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWatch(cfg *config.Config) error {
	if err := cfg.ValidateWatch(); err != nil {
		return err
	}

	storage := session.NewFileTokenStorage(cfg.TokenFile)
	core := Wire(cfg, storage, slog.Default(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. 永続化トークンからの復元を試みる
	core.Sessions.Restore(ctx)

	// 2. 復元できなければ資格情報でログインする
	if core.Sessions.Identity() == nil {
		if cfg.Email == "" || cfg.Password == "" {
			return fmt.Errorf("セッションを確立できません。CARELINK_EMAILとCARELINK_PASSWORDを設定してください")
		}
		if _, err := core.Sessions.Login(ctx, cfg.Email, cfg.Password); err != nil {
			return fmt.Errorf("ログインに失敗しました: %w", err)
		}
	}

	identity := core.Sessions.Identity()
	slog.Info("watch mode started",
		slog.String("user_id", identity.ID),
		slog.String("role", string(identity.Role)),
	)

	// シグナル受信まで待機。イベント処理はOnPushハンドラーが担う
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down watch mode...")
	core.Shutdown()

	slog.Info("watch mode stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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
