package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"midiplayer/core/auth"
	"midiplayer/logger"
)

type contextKey string

const operatorKey contextKey = "operator"

// TokenRequest represents the token request body
type TokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// TokenHandler issues a control token when the password matches CONTROL_PASSWORD_HASH.
func (h *APIHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil || h.passwordHash == "" {
		http.Error(w, "Token issuing is disabled", http.StatusNotFound)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Token] 解析请求体失败", logger.ErrorField(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Operator == "" || req.Password == "" {
		http.Error(w, "Operator and password are required", http.StatusBadRequest)
		return
	}

	if !auth.VerifyPassword(req.Password, h.passwordHash) {
		logger.Warn("[Token] 密码错误", logger.String("operator", req.Operator))
		http.Error(w, "Invalid operator or password", http.StatusUnauthorized)
		return
	}

	token, err := h.signer.GenerateToken(req.Operator)
	if err != nil {
		logger.Error("[Token] 生成 token 失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Info("[Token] token issued", logger.String("operator", req.Operator))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// AuthMiddleware checks the bearer token. Without a signer every request passes.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if h.signer == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := h.signer.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, claims.Operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OperatorFromContext returns the operator set by AuthMiddleware.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}
