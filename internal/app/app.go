package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/bijou/internal/auth"
	"github.com/hitoshi/bijou/internal/catalog"
	"github.com/hitoshi/bijou/internal/config"
	"github.com/hitoshi/bijou/internal/database"
	"github.com/hitoshi/bijou/internal/handler"
	"github.com/hitoshi/bijou/internal/logger"
	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/middleware"
	"github.com/hitoshi/bijou/internal/notify"
	"github.com/hitoshi/bijou/internal/order"
	"github.com/hitoshi/bijou/internal/paytr"
	"github.com/hitoshi/bijou/internal/repository"
	"github.com/hitoshi/bijou/internal/returns"
	"github.com/hitoshi/bijou/internal/security"
	"github.com/hitoshi/bijou/internal/shipping"
	"github.com/hitoshi/bijou/internal/storage"
	"github.com/hitoshi/bijou/internal/user"
	"github.com/hitoshi/bijou/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
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
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("google_enabled", cfg.GoogleEnabled()),
		slog.Bool("mail_enabled", cfg.MailEnabled()),
		slog.Bool("storage_enabled", cfg.StorageEnabled()),
		slog.Bool("shipping_enabled", cfg.ShippingEnabled()),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandCleanup:
		return runCleanupOnce(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// mailer は利用者向けメール通知をまとめたインターフェース。
// notify.Mailer と notify.Disabled が満たす。
type mailer interface {
	user.CodeMailer
	order.Notifier
	returns.Notifier
}

// newMailer はSMTP設定があればMailerを、なければ送信しないDisabledを返す。
func newMailer(cfg *config.Config) mailer {
	if !cfg.MailEnabled() {
		slog.Warn("SMTP is not configured; outgoing mail is disabled")
		return notify.Disabled{}
	}
	return notify.NewMailer(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		Timeout:  10 * time.Second,
	})
}

// newShipper は配送プロバイダーが設定されていればクライアントを返す。
// 未設定の場合はnilを返し、配送ラベル作成はProviderUnavailableになる。
func newShipper(cfg *config.Config, mc metrics.MetricsCollector) order.ShipmentCreator {
	if !cfg.ShippingEnabled() {
		return nil
	}
	return shipping.NewClient(cfg.ShippingAPIURL, cfg.ShippingAPIKey, cfg.ShippingTimeout, mc)
}

// newUploader はS3が設定されていればアップローダーを返す。
// 未設定またはセッション生成に失敗した場合はnilを返し、画像アップロードは無効になる。
func newUploader(cfg *config.Config) returns.Uploader {
	if !cfg.StorageEnabled() {
		return nil
	}
	uploader, err := storage.NewS3Uploader(cfg.S3Region, cfg.S3Bucket)
	if err != nil {
		slog.Error("failed to initialize S3 uploader; image upload is disabled", slog.String("error", err.Error()))
		return nil
	}
	return uploader
}

// newPaymentClient はPayTRクライアントを生成する。
// 決済完了・失敗時の戻り先はBASE_URL配下のチェックアウト画面。
func newPaymentClient(cfg *config.Config, mc metrics.MetricsCollector) *paytr.Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return paytr.NewClient(paytr.Config{
		MerchantID:     cfg.PayTRMerchantID,
		MerchantKey:    cfg.PayTRMerchantKey,
		MerchantSalt:   cfg.PayTRMerchantSalt,
		TestMode:       cfg.PayTRTestMode,
		Currency:       cfg.PayTRCurrency,
		MaxInstallment: cfg.PayTRMaxInstallment,
		NoInstallment:  cfg.PayTRNoInstallment,
		TokenURL:       cfg.PayTRTokenURL,
		RefundURL:      cfg.PayTRRefundURL,
		OKURL:          base + "/checkout/success",
		FailURL:        base + "/checkout/failure",
		Timeout:        cfg.PayTRTimeout,
	}, nil, mc)
}

// newGoogleSignIn はGoogle OAuthが設定されていればサインインサービスを返す。
func newGoogleSignIn(cfg *config.Config, users auth.UserStore, identities auth.IdentityStore, tokens *auth.TokenIssuer) handler.GoogleSignInInterface {
	if !cfg.GoogleEnabled() {
		return nil
	}
	provider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	return auth.NewService(provider, users, identities, tokens)
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouterDeps は全サービスをワイヤリングしてRouterDepsを組み立てる。
func buildRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, mc metrics.MetricsCollector) *handler.RouterDeps {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	codeRepo := repository.NewPostgresVerificationCodeRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	countryRepo := repository.NewPostgresCountryRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)
	returnRepo := repository.NewPostgresReturnRequestRepo(db)

	// 横断的なサービス
	sanitizer := security.NewTextSanitizer()
	prober := security.NewImageProber(security.NewSafeImageClient(cfg.ImageProbeTimeout))
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	mail := newMailer(cfg)
	payments := newPaymentClient(cfg, mc)

	// ドメインサービス
	userService := user.NewService(userRepo, codeRepo, tokens, mail, sanitizer, cfg.VerificationCodeTTL)
	catalogService := catalog.NewService(productRepo, countryRepo)
	orderService := order.NewService(orderRepo, userRepo, productRepo, payments, newShipper(cfg, mc), mail, sanitizer, mc)
	returnService := returns.NewService(returnRepo, orderRepo, userRepo, sanitizer, mc, returns.Options{
		WindowDays:    cfg.ReturnWindowDays,
		ReturnAddress: cfg.ReturnAddress,
		Refunder:      payments,
		Prober:        prober,
		Uploader:      newUploader(cfg),
		Notifier:      mail,
	})

	return &handler.RouterDeps{
		TokenParser:       tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              strings.HasPrefix(cfg.BaseURL, "https://"),
		RateLimiter:       middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPayment)),
		Logger:            slog.Default(),
		Metrics:           mc,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     db,

		AccountService: userService,
		GoogleSignIn:   newGoogleSignIn(cfg, userRepo, identRepo, tokens),
		AuthConfig:     handler.AuthHandlerConfig{CookieSecure: strings.HasPrefix(cfg.BaseURL, "https://")},
		UserService:    userService,

		CatalogService: catalogService,

		OrderService:   orderService,
		PaymentService: orderService,

		ReturnService: returnService,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスとルーターの構築
	reg, mc := newMetricsRegistry()
	deps := buildRouterDeps(cfg, db, reg, mc)
	defer deps.RateLimiter.Stop()

	router := handler.NewRouter(deps)

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if svc, ok := deps.PaymentService.(*order.Service); ok {
		svc.WaitNotifications()
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、決済待ち注文の期限切れ処理と確認コードの削除を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. ジョブの初期化
	runner := newCleanupRunner(cfg, db)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("payment_expiry", cfg.PaymentExpiry),
	)

	// メインgoroutineで実行（ブロッキング）
	runner.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// newCleanupRunner はworkerとcleanupコマンドが共有するジョブ構成を返す。
// workerのメトリクスは公開しないため、専用のレジストリに記録する。
func newCleanupRunner(cfg *config.Config, db *sql.DB) *cleanup.Runner {
	_, mc := newMetricsRegistry()
	return cleanup.NewRunner(slog.Default(), cfg.CleanupInterval,
		cleanup.NewPaymentExpiryJob(db, slog.Default(), mc, cfg.PaymentExpiry),
		cleanup.NewVerificationCodeJob(db, slog.Default()),
	)
}

// runCleanupOnce はクリーンアップジョブを1回だけ実行する。
// いずれかのジョブが失敗した場合はエラーを返し、終了コードで失敗を通知する。
func runCleanupOnce(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if failed := newCleanupRunner(cfg, db).RunOnce(ctx); failed > 0 {
		return fmt.Errorf("cleanup finished with %d failed job(s)", failed)
	}
	slog.Info("cleanup finished")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
