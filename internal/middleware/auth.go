package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// NewBearerAuthMiddleware はAPIトークンによるBearer認証ミドルウェアを返す。
// Authorizationヘッダーの "Bearer {token}" を設定済みトークンと定数時間で比較する。
// トークンが一致しない場合は401を返す。
func NewBearerAuthMiddleware(apiToken string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "有効なAPIトークンをAuthorizationヘッダーに設定してください。",
	})
}
