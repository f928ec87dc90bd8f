package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dakoku/internal/model"
)

// LocationProviderInterface は拠点ハンドラーが必要とする設定のインターフェース。
type LocationProviderInterface interface {
	Locations(ctx context.Context) ([]model.Location, error)
}

// LocationHandler は承認済み拠点一覧APIのハンドラー。
// キオスクが地図表示と「圏外です」の案内に使う。
type LocationHandler struct {
	provider LocationProviderInterface
}

// NewLocationHandler はLocationHandlerの新しいインスタンスを生成する。
func NewLocationHandler(provider LocationProviderInterface) *LocationHandler {
	return &LocationHandler{provider: provider}
}

// locationResponse は拠点のAPI表現。
type locationResponse struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// ListLocations は承認済み拠点の一覧を設定ファイルの定義順で返す。
// GET /api/locations
func (h *LocationHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.provider.Locations(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]locationResponse, 0, len(locations))
	for _, loc := range locations {
		resp = append(resp, locationResponse{
			Name:         loc.Name,
			Latitude:     loc.Latitude,
			Longitude:    loc.Longitude,
			RadiusMeters: loc.RadiusMeters,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SetupLocationRoutes は拠点関連のルートをルーターに登録する。
func SetupLocationRoutes(r chi.Router, handler *LocationHandler) {
	r.Get("/locations", handler.ListLocations)
}
