package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bijou/internal/metrics"
	"github.com/hitoshi/bijou/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenParser       middleware.TokenParser
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// 認証・ユーザー
	AccountService AccountServiceInterface
	GoogleSignIn   GoogleSignInInterface
	AuthConfig     AuthHandlerConfig
	UserService    UserServiceInterface

	// カタログ
	CatalogService CatalogServiceInterface

	// 注文・決済
	OrderService   OrderServiceInterface
	PaymentService PaymentServiceInterface

	// 返品
	ReturnService ReturnServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Auth → RateLimit(General) → Admin
//
// 公開ルート（/health、/metrics、/auth/*、カタログ、決済コールバック）は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AccountService, deps.GoogleSignIn, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	orderHandler := NewOrderHandler(deps.OrderService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)
	returnHandler := NewReturnHandler(deps.ReturnService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	r.Get("/products", catalogHandler.ListProducts)
	r.Get("/products/{id}", catalogHandler.GetProduct)
	r.Get("/countries", catalogHandler.ListCountries)
	r.Get("/countries/{code}", catalogHandler.GetCountry)

	// プロバイダーからの通知。常に200 "OK"を返す
	r.Post("/payment/callback", paymentHandler.Callback)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenParser))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/users", func(r chi.Router) {
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.UpdateProfile)
			r.Post("/password/code", userHandler.RequestPasswordCode)
			r.Put("/password", userHandler.ConfirmPassword)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/user/myorders", orderHandler.ListMyOrders)
			r.Get("/{id}", orderHandler.GetOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.NewAdminMiddleware())
				r.Get("/all", orderHandler.ListAllOrders)
				r.Put("/{id}/status", orderHandler.UpdateOrderStatus)
				r.Post("/{id}/shipment", orderHandler.CreateShipment)
			})
		})

		r.Route("/payment", func(r chi.Router) {
			// 決済開始は専用のレート制限を追加
			r.With(deps.RateLimiter.PaymentMiddleware()).Post("/create-payment", paymentHandler.CreatePayment)
			r.Post("/create-order", paymentHandler.CreateOrder)
			r.Get("/status/{merchant_oid}", paymentHandler.Status)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Post("/", returnHandler.Create)
			r.Get("/my-returns", returnHandler.ListMine)
			r.Post("/upload-images", returnHandler.UploadImages)
			r.Put("/{id}/cancel", returnHandler.Cancel)
			r.Put("/{id}/tracking", returnHandler.AttachTracking)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.NewAdminMiddleware())
				r.Get("/all", returnHandler.AdminList)
				r.Get("/export", returnHandler.AdminExport)
				r.Put("/{id}", returnHandler.AdminUpdate)
			})
		})
	})

	return r
}
