package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/http/response"
	"github.com/vitalab/vitalab-backend/internal/platform/auth"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Error(w, domain.E(domain.ErrUnauthorized, "请先登录"))
				return
			}
			raw := strings.TrimPrefix(authz, "Bearer ")
			claims, err := auth.Parse(raw, secret)
			if err != nil {
				response.Error(w, domain.E(domain.ErrUnauthorized, "登录已失效，请重新登录"))
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireJWT.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims(r)
		if claims == nil || claims.Role != domain.RoleAdmin {
			response.Error(w, domain.E(domain.ErrForbidden, "无权访问"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}
