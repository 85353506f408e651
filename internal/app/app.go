package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/uniconnect/internal/auth"
	"github.com/hitoshi/uniconnect/internal/config"
	"github.com/hitoshi/uniconnect/internal/database"
	"github.com/hitoshi/uniconnect/internal/handler"
	"github.com/hitoshi/uniconnect/internal/identity"
	"github.com/hitoshi/uniconnect/internal/logger"
	"github.com/hitoshi/uniconnect/internal/metrics"
	"github.com/hitoshi/uniconnect/internal/middleware"
	"github.com/hitoshi/uniconnect/internal/profile"
	"github.com/hitoshi/uniconnect/internal/repository"
	"github.com/hitoshi/uniconnect/internal/security"
	"github.com/hitoshi/uniconnect/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	dbRetryDelay    = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する（nilの場合はStderr）。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。コマンドの結果はstdoutに、ログはlogwに出力する。
// ctxがキャンセルされるとサーバー系のコマンドはグレースフルに終了する。
func Run(ctx context.Context, stdout, logw io.Writer, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHelp:
		fmt.Fprint(stdout, usage)
		return nil
	case CommandHealthcheck:
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(logw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cmd.needsServer() {
		slog.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
			slog.String("base_url", cfg.BaseURL),
		)
	}

	switch cmd {
	case CommandServe:
		return runServe(ctx, cfg)
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return NewCLI(cfg, stdout).Run(ctx, cmd, args[1:])
	}
}

// openDB はDB接続を開き、疎通が取れるまで待つ。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.Connect(ctx, cfg.DatabaseURL, database.ConnectOptions{
		PingTimeout: dbPingTimeout,
		Attempts:    cfg.DBConnectAttempts,
		RetryDelay:  dbRetryDelay,
	})
}

// runServe はWebフロントのHTTPサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングし、ctxがキャンセルされるまで待ち受ける。
func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリとセキュリティサービスの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	ssrfGuard := security.NewSSRFGuard()
	policy := auth.NewDomainPolicy(cfg.AllowedDomain)

	// 4. ドメインサービスの初期化
	identityAPI := identity.NewAPI(identity.Config{
		BaseURL: cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Timeout: cfg.HTTPTimeout,
	})
	oauthProvider := auth.NewGoogleOAuthProvider(identityAPI, auth.GoogleOAuthConfig{
		RedirectURL: cfg.BaseURL + "/auth/callback",
	})
	authService := auth.NewService(
		oauthProvider, identityAPI, sessionRepo, policy,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		collector,
	)

	profileClient := profile.NewClient(profile.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Metrics: collector,
	})
	avatars := profile.NewAvatarSource(ssrfGuard, cfg.HTTPTimeout, cfg.AvatarMaxSize)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitProfileWrite),
	)
	defer rateLimiter.Stop()

	csrf := middleware.CSRFConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}

	router := handler.NewRouter(&handler.RouterDeps{
		SessionLoader:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF:              csrf,
		Logger:            slog.Default(),
		HTTPMetrics:       collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileClient: profileClient,
		AvatarReader:  avatars,

		PageConfig: handler.PageConfig{
			AllowedDomain: policy.Domain(),
			CSRF:          csrf,
		},

		Pinger:         db,
		MetricsHandler: metrics.Handler(registry),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はserverを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れWebセッションの削除ジョブを定期実行し、メトリクスを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("required environment variables are not set: [DATABASE_URL]")
	}

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.SessionRetentionDays

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.SessionRetentionDays),
	)

	// 4. メトリクスサーバーをバックグラウンドで起動
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsDone := make(chan error, 1)
	go func() {
		metricsDone <- serveUntilDone(ctx, metricsServer, "metrics server")
	}()

	// 5. クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	if err := <-metricsDone; err != nil {
		slog.Error("metrics server failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("required environment variables are not set: [DATABASE_URL]")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("applied", status.Applied),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
