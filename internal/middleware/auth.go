package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"beehive/internal/auth"

	"github.com/rs/zerolog"
)

// TokenVerifier 校验 Bearer 令牌。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type identityKey struct{}

// Authenticate 创建 JWT 鉴权中间件。
// 期望请求头格式：Authorization: Bearer <token>
// 验证成功后将 auth.Identity 存入 context。
func Authenticate(verifier TokenVerifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			const prefix = "Bearer "
			if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				writeAuthError(w, http.StatusUnauthorized, "Invalid Authorization header")
				return
			}

			token := strings.TrimSpace(header[len(prefix):])
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Invalid Authorization header")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("token verification failed")
				writeAuthError(w, http.StatusUnauthorized, "Invalid or unverifiable token")
				return
			}

			ctx := WithIdentity(r.Context(), auth.Identity{ID: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin 必须挂在 Authenticate 之后。
func RequireAdmin(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}
			if !identity.IsAdmin() {
				log.Info().Str("user_id", identity.ID).Str("path", r.URL.Path).Msg("admin access denied")
				writeJSONError(w, http.StatusForbidden, "Admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity 把调用者身份写入 context。
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom 从 context 中获取经过鉴权的调用者。
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok && identity.ID != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="beehive"`)
	writeJSONError(w, status, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
