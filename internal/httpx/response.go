// Package httpx はゲートウェイが返す全レスポンスの組み立てを提供する。
// 固定のCORS/キャッシュヘッダーセットの付与と、
// ボディなしエラーレスポンスのJSONボディ合成を一元化する。
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// baseHeaders は全レスポンスにマージする固定ヘッダーセット。
// ブラウザ拡張からのクロスオリジンアクセスを許可し、キャッシュを禁止する。
var baseHeaders = map[string]string{
	"Access-Control-Allow-Methods":         "GET,HEAD,PUT,POST,DELETE,OPTIONS",
	"Access-Control-Allow-Origin":          "*",
	"Access-Control-Allow-Headers":         "content-type, client-id, authorization",
	"Access-Control-Allow-Private-Network": "true",
	"Cache-Control":                        "no-cache,private",
}

// errorBody はボディなしエラーレスポンスに合成するJSONボディ。
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ApplyBaseHeaders は固定ヘッダーセットをhにマージする。
// すでに設定済みのキーは上書きしない（呼び出し側のヘッダーが優先される）。
func ApplyBaseHeaders(h http.Header) {
	for k, v := range baseHeaders {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
}

// WriteEmpty は固定ヘッダー付きの空ボディレスポンスを書き込む。
// statusが400以上の場合は {"status":N,"message":""} のボディが合成される。
func WriteEmpty(w http.ResponseWriter, status int) {
	WriteError(w, status, "")
}

// WriteError は固定ヘッダー付きのエラーレスポンスを書き込む。
// ボディは {"status":N,"message":M} の改行終端JSONとして合成される。
// statusが400未満の場合はボディなしで書き込む。
func WriteError(w http.ResponseWriter, status int, message string) {
	ApplyBaseHeaders(w.Header())
	if status < http.StatusBadRequest {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(errorBody{Status: status, Message: message})
	if err != nil {
		// errorBodyのマーシャルは失敗しない
		http.Error(w, message, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s\n", body)
}

// WriteJSON は固定ヘッダー付きのJSONレスポンスを書き込む。
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	ApplyBaseHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode response body: %w", err)
	}
	return nil
}
