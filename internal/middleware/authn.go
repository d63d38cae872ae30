// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/edgegate/internal/auth"
	"github.com/hitoshi/edgegate/internal/httpx"
	"github.com/hitoshi/edgegate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// CredentialValidator はクレデンシャル検証のインターフェース。
// auth.Validatorの部分集合として定義する。
type CredentialValidator interface {
	Validate(ctx context.Context, authorization string) (*model.Identity, error)
}

// ValidationRecorder は検証結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type ValidationRecorder interface {
	RecordValidation(kind, outcome string)
}

// NewAuthMiddleware はインバウンドクレデンシャルを検証し、
// 解決したIdentityをリクエストコンテキストに注入するミドルウェアを返す。
// クレデンシャルはauthorizationヘッダーから取得し、
// なければauthorizationクエリパラメータにフォールバックする。
// IdPが検証を拒否した場合は上流レスポンスをverbatimで返す。
// recorderはnilを許容する。
func NewAuthMiddleware(validator CredentialValidator, recorder ValidationRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := r.Header.Get("Authorization")
			if authorization == "" {
				authorization = r.URL.Query().Get("authorization")
			}

			identity, err := validator.Validate(r.Context(), authorization)
			if recorder != nil {
				recorder.RecordValidation(credentialKind(authorization), outcomeOf(err))
			}
			if err != nil {
				writeValidationError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentialKind はメトリクスラベル用にクレデンシャル種別を分類する。
func credentialKind(authorization string) string {
	if _, ok := model.ParseCredential(authorization).(model.AssertionCredential); ok {
		return "assertion"
	}
	return "bearer"
}

// outcomeOf は検証結果をメトリクスラベルに変換する。
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return "rejected"
}

// writeValidationError は検証エラーを種別に応じてレスポンスに書き込む。
func writeValidationError(w http.ResponseWriter, err error) {
	// 上流の拒否はステータス・ボディともにそのまま返す
	var upstreamErr *auth.UpstreamError
	if errors.As(err, &upstreamErr) {
		resp := upstreamErr.Response
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		httpx.ApplyBaseHeaders(w.Header())
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		httpx.WriteError(w, apiErr.Status, apiErr.Message)
		return
	}

	slog.Error("credential validation failed", slog.String("error", err.Error()))
	httpx.WriteError(w, http.StatusBadGateway, "validation unavailable")
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// AuthMiddlewareが事前に適用されている必要がある。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// WithIdentity はIdentityを格納したコンテキストを返す。テスト用。
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
