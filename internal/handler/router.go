package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dakoku/internal/attendance"
	"github.com/hitoshi/dakoku/internal/directory"
	"github.com/hitoshi/dakoku/internal/geo"
	"github.com/hitoshi/dakoku/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	APIKey            string
	RateLimiter       *middleware.RateLimiter

	// 打刻
	AttendanceService AttendanceServiceInterface
	ExportService     ExportServiceInterface
	Timezone          *time.Location

	// 参照データ
	StaffDirectory   StaffDirectoryInterface
	LocationProvider LocationProviderInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → (APIグループ) APIKey → RateLimit
//
// /health と /metrics は監視用のため認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	attendanceHandler := NewAttendanceHandler(deps.AttendanceService)
	exportHandler := NewExportHandler(deps.ExportService, deps.Timezone)
	staffHandler := NewStaffHandler(deps.StaffDirectory)
	locationHandler := NewLocationHandler(deps.LocationProvider)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 認証不要のルート ---

	SetupHealthRoutes(r, healthHandler)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- キオスクAPIキーが必要なルート ---
	// ミドルウェアスタック: APIKey → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.APIKey))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api", func(r chi.Router) {
			// POST /api/attendance には打刻専用のレート制限を追加
			SetupAttendanceRoutes(r, attendanceHandler, deps.RateLimiter.SubmitMiddleware())
			SetupExportRoutes(r, exportHandler)
			SetupStaffRoutes(r, staffHandler)
			SetupLocationRoutes(r, locationHandler)
		})
	})

	return r
}

// --- compile-time interface checks ---
// ドメイン実装がhandlerの期待するインターフェースを満たすことを保証する。

var _ AttendanceServiceInterface = (*attendance.Service)(nil)
var _ ExportServiceInterface = (*attendance.Service)(nil)
var _ StaffDirectoryInterface = (*directory.Service)(nil)
var _ LocationProviderInterface = (*geo.FileProvider)(nil)
var _ HealthChecker = (*sql.DB)(nil)
