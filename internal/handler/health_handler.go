package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthChecker はヘルスチェックが依存するDB疎通確認のインターフェース。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックAPIのハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerの新しいインスタンスを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

const healthPingTimeout = 2 * time.Second

// Health はプロセスの生存とDB疎通を確認する。
// Dockerヘルスチェックと監視から認証なしで叩かれる。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := h.checker.PingContext(ctx); err != nil {
		slog.Error("healthcheckでDB疎通に失敗しました", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
		return
	}

	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}

// SetupHealthRoutes はヘルスチェックのルートをルーターに登録する。
func SetupHealthRoutes(r chi.Router, handler *HealthHandler) {
	r.Get("/health", handler.Health)
}
