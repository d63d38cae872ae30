package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/edgegate/internal/httpx"
	"github.com/hitoshi/edgegate/internal/model"
	"github.com/hitoshi/edgegate/internal/storage"
)

// Gateway はテナントスコープのストレージ操作を処理するHTTPハンドラー。
// 全テナントが同一のコードパスを通り、分離はObjectKeyのプレフィックスのみで
// 強制される。
type Gateway struct {
	store storage.ObjectStore
}

// NewGateway はGatewayを生成する。
func NewGateway(store storage.ObjectStore) *Gateway {
	return &Gateway{store: store}
}

// Handle は認証済みリクエストをストレージ操作に翻訳する。
// identityはユーザー帰属を持つ必要がある。
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request, identity *model.Identity) {
	if !identity.HasUser() {
		httpx.WriteError(w, http.StatusForbidden, "storage api requires user access token")
		return
	}

	key := ObjectKey(identity.UserID, identity.ClientID, r.URL.Path)
	slog.Debug("resolved object key",
		slog.String("key", key),
		slog.String("method", r.Method),
	)

	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(key, "/") {
			g.handleList(w, r, key)
			return
		}
		g.handleGet(w, r, key)
	case http.MethodHead:
		g.handleHead(w, r, key)
	case http.MethodPut, http.MethodPost:
		g.handlePut(w, r, key)
	case http.MethodDelete:
		g.handleDelete(w, r, key)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "Unsupported method")
	}
}

// handleList はプレフィックス配下のディレクトリビューを返す。
// GET /path/to/dir/
// フラットなキー空間から直下の子セグメント名を導出する読み取り時ビューであり、
// ディレクトリ構造が保存されているわけではない。
func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request, prefix string) {
	page, err := g.store.List(r.Context(), prefix, r.URL.Query().Get("cursor"))
	if err != nil {
		slog.Error("failed to list objects",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	if page.Truncated {
		w.Header().Set("Cursor", page.Cursor)
	}

	// フルキーではなく、プレフィックス直下の子セグメント名を重複排除して返す
	seen := make(map[string]struct{})
	children := make([]string, 0, len(page.Keys))
	for _, key := range page.Keys {
		child, _, _ := strings.Cut(key[len(prefix):], "/")
		if _, ok := seen[child]; ok {
			continue
		}
		seen[child] = struct{}{}
		children = append(children, child)
	}

	if err := httpx.WriteJSON(w, http.StatusOK, children); err != nil {
		slog.Error("failed to write listing response", slog.String("error", err.Error()))
	}
}

// handleGet は条件付き・レンジ指定のオブジェクト取得を処理する。
// GET /path/to/object
func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	obj, err := g.store.Get(r.Context(), key, conditionsFrom(r))
	if err != nil {
		slog.Error("failed to get object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	if obj == nil {
		httpx.WriteEmpty(w, http.StatusNotFound)
		return
	}

	writeObjectHeaders(w, obj)

	// ストレージがボディを返さなかった場合は条件付きヘッダーの一致を意味する
	if obj.Body == nil {
		httpx.ApplyBaseHeaders(w.Header())
		w.WriteHeader(http.StatusNotModified)
		return
	}
	defer obj.Body.Close()

	status := http.StatusOK
	if r.Header.Get("Range") != "" {
		status = http.StatusPartialContent
	}

	httpx.ApplyBaseHeaders(w.Header())
	w.WriteHeader(status)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("failed to stream object body",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// handleHead はメタデータのみのレスポンスを返す。
// HEAD /path/to/object
func (g *Gateway) handleHead(w http.ResponseWriter, r *http.Request, key string) {
	obj, err := g.store.Head(r.Context(), key)
	if err != nil {
		slog.Error("failed to head object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	if obj == nil {
		httpx.WriteEmpty(w, http.StatusNotFound)
		return
	}

	writeObjectHeaders(w, obj)
	httpx.ApplyBaseHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
}

// handlePut はリクエストボディをオブジェクトとして格納する。
// PUT|POST /path/to/object
// 書き込み後のトランスポート障害で確認が届かなくても、キーによる冪等な
// 書き込みであるため呼び出し側は安全にリトライできる。
func (g *Gateway) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	etag, err := g.store.Put(r.Context(), key, r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("failed to put object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	if etag != "" {
		w.Header().Set("Etag", etag)
	}
	httpx.WriteEmpty(w, http.StatusOK)
}

// handleDelete はオブジェクトを削除する。存在しないキーでも成功を返す（冪等）。
// DELETE /path/to/object
func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	if err := g.store.Delete(r.Context(), key); err != nil {
		slog.Error("failed to delete object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	httpx.WriteEmpty(w, http.StatusOK)
}

// conditionsFrom は受信リクエストの条件付き・レンジヘッダーを取り出す。
// 値は解釈せず、そのままストレージに渡す。
func conditionsFrom(r *http.Request) storage.Conditions {
	return storage.Conditions{
		Range:             r.Header.Get("Range"),
		IfMatch:           r.Header.Get("If-Match"),
		IfNoneMatch:       r.Header.Get("If-None-Match"),
		IfModifiedSince:   r.Header.Get("If-Modified-Since"),
		IfUnmodifiedSince: r.Header.Get("If-Unmodified-Since"),
	}
}

// writeObjectHeaders はオブジェクトのメタデータをレスポンスヘッダーに書き込む。
// Content-Rangeはストレージの報告値をそのまま使い、ローカルでは合成しない。
func writeObjectHeaders(w http.ResponseWriter, obj *storage.Object) {
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ETag != "" {
		w.Header().Set("Etag", obj.ETag)
	}
	if obj.ContentRange != "" {
		w.Header().Set("Content-Range", obj.ContentRange)
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
}
