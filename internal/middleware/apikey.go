// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/hitoshi/dakoku/internal/model"
)

// APIKeyHeader はキオスクAPIキーを運ぶリクエストヘッダー名。
const APIKeyHeader = "X-Api-Key"

// NewAPIKeyMiddleware はエンドポイントを共有APIキーで保護するミドルウェアを返す。
// キオスク端末は起動時に配布されたキーをX-Api-Keyヘッダーで送信する。
// キーの比較は一定時間比較で行う。
func NewAPIKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// キー未設定のサーバーはすべてのリクエストを拒否する
			if apiKey == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
