// Package handler はリクエストディスパッチャーとルーティングを提供する。
// 受信リクエストを OPTIONS短絡 → 静的アセット → トークンプロキシ →
// クレデンシャル検証 → ストレージゲートウェイ の順に振り分ける。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/edgegate/internal/gateway"
	"github.com/hitoshi/edgegate/internal/httpx"
	"github.com/hitoshi/edgegate/internal/metrics"
	"github.com/hitoshi/edgegate/internal/middleware"
	"github.com/hitoshi/edgegate/internal/tokenproxy"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// クレデンシャル検証
	Validator middleware.CredentialValidator

	// トークンプロキシ
	TokenProxy *tokenproxy.Proxy

	// ストレージゲートウェイ。nilの場合ストレージルートは404を返す。
	StorageGateway *gateway.Gateway

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Collector
	Logger      *slog.Logger

	// Static は静的アセット配信の外部コラボレーター（任意）。
	// 指定された場合 /assets 配下にマウントされ、認証の外側で配信される。
	Static http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → ForwardedURL → OPTIONS短絡
//
// ストレージルートはさらに AuthMiddleware → RateLimitMiddleware を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(middleware.NewForwardedURLMiddleware())
	r.Use(preflightMiddleware)

	// --- 認証不要のルート ---

	r.Get("/healthz", handleHealthz)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	if deps.Static != nil {
		r.Mount("/assets", http.StripPrefix("/assets", deps.Static))
	}

	// トークンプロキシ（クレデンシャル検証の対象外。フォーム自体が
	// client_idを運び、シークレット注入はプロキシ内で行われる）
	r.Route("/oauth2", func(r chi.Router) {
		r.Post("/token", deps.TokenProxy.Exchange)
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteEmpty(w, http.StatusNotFound)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		})
	})

	// 拡張バックエンドサービス連携の予約パス。契約が未確定のため未実装。
	r.Handle("/ebs/*", http.HandlerFunc(handleEBS))
	r.Handle("/ebs", http.HandlerFunc(handleEBS))

	// --- 認証が必要なルート（ストレージゲートウェイ） ---
	r.Group(func(r chi.Router) {
		// nilの*Collectorをそのまま渡すと非nilインターフェースになり、
		// ミドルウェア側のnilガードをすり抜けるため、ここで判定する
		var recorder middleware.ValidationRecorder
		if deps.Metrics != nil {
			recorder = deps.Metrics
		}
		r.Use(middleware.NewAuthMiddleware(deps.Validator, recorder))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Handle("/*", storageHandler(deps))
	})

	return r
}

// preflightMiddleware はOPTIONSプリフライトに空の200を即座に返す。
// 他のどのコンポーネントにも到達させない。
func preflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			httpx.WriteEmpty(w, http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealthz はライブネスチェックに応答する。
func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write healthz response", slog.String("error", err.Error()))
	}
}

// handleEBS は拡張バックエンドサービスの予約パスに応答する。
func handleEBS(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, http.StatusNotImplemented, "extension backend service is not available")
}

// storageHandler はストレージゲートウェイへの委譲ハンドラーを返す。
// ストレージが未設定のデプロイでは404を返す。
func storageHandler(deps *RouterDeps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := middleware.IdentityFromContext(r.Context())
		if err != nil {
			// AuthMiddlewareを通過していれば到達しない
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if deps.StorageGateway == nil {
			httpx.WriteEmpty(w, http.StatusNotFound)
			return
		}

		if deps.Metrics != nil {
			deps.Metrics.RecordStorageOp(storageOpFor(r))
		}
		deps.StorageGateway.Handle(w, r, identity)
	})
}

// storageOpFor はメトリクスラベル用にストレージ操作を分類する。
func storageOpFor(r *http.Request) string {
	switch r.Method {
	case http.MethodGet:
		if len(r.URL.Path) > 0 && r.URL.Path[len(r.URL.Path)-1] == '/' {
			return "list"
		}
		return "get"
	case http.MethodHead:
		return "head"
	case http.MethodPut, http.MethodPost:
		return "put"
	case http.MethodDelete:
		return "delete"
	default:
		return "other"
	}
}
