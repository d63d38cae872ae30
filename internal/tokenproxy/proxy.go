// Package tokenproxy はコンフィデンシャルクライアントのトークンプロキシを提供する。
// ブラウザ側コードが持たないclient_secretをサーバー側で注入し、
// IdPのトークンエンドポイントへのリクエストを仲介する。
// シークレットがレジストリの外に出るのはここだけであり、
// 上流で消費されるのみで呼び出し元には決して返らない。
package tokenproxy

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/edgegate/internal/httpx"
	"github.com/hitoshi/edgegate/internal/idp"
	"github.com/hitoshi/edgegate/internal/model"
	"github.com/hitoshi/edgegate/internal/registry"
)

// maxFormMemory はmultipartフォームのメモリ上限。
const maxFormMemory = 1 << 20

// TokenSender はIdPのトークンエンドポイントへの転送インターフェース。
// idp.Clientの部分集合として定義する。
type TokenSender interface {
	Token(ctx context.Context, form url.Values) (*idp.Response, error)
}

// Proxy はトークン交換リクエストを仲介するHTTPハンドラー。
type Proxy struct {
	idp      TokenSender
	registry registry.SecretRegistry
}

// NewProxy はProxyを生成する。
func NewProxy(tokenSender TokenSender, reg registry.SecretRegistry) *Proxy {
	return &Proxy{
		idp:      tokenSender,
		registry: reg,
	}
}

// Exchange はトークン交換リクエストを処理する。
// POST /oauth2/token
func (p *Proxy) Exchange(w http.ResponseWriter, r *http.Request) {
	form, apiErr := parseForm(r)
	if apiErr != nil {
		httpx.WriteError(w, apiErr.Status, apiErr.Message)
		return
	}

	clientID := form.Get("client_id")
	if clientID == "" {
		apiErr := model.NewUnauthorizedError("missing client_id")
		httpx.WriteError(w, apiErr.Status, apiErr.Message)
		return
	}

	secret, err := p.registry.Lookup(r.Context(), clientID)
	if err != nil {
		slog.Error("failed to look up client for token exchange",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if secret == "" {
		httpx.WriteError(w, http.StatusForbidden, "unauthorized client")
		return
	}

	// シークレットを注入して上流に転送する
	form.Set("client_secret", secret)
	resp, err := p.idp.Token(r.Context(), form)
	if err != nil {
		slog.Error("token exchange failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "token endpoint unreachable")
		return
	}

	// 上流レスポンスをverbatimで返す
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	httpx.ApplyBaseHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// parseForm はリクエストボディからフォームを取り出す。
// コンテンツタイプがフォーム系（urlencodedまたはmultipart）でない場合は400。
func parseForm(r *http.Request) (url.Values, *model.APIError) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.Contains(mediaType, "form") {
		return nil, model.NewBadRequestError("content type must be form data")
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, model.NewBadRequestError("malformed form body")
		}
		return r.PostForm, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, model.NewBadRequestError("malformed form body")
		}
		form := url.Values{}
		for key, values := range r.MultipartForm.Value {
			for _, v := range values {
				form.Add(key, v)
			}
		}
		return form, nil
	default:
		return nil, model.NewBadRequestError("content type must be form data")
	}
}
