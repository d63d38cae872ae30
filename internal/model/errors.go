// Package model はゲートウェイのドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError はクライアントに返すエラーを表す。
// StatusはそのままHTTPステータスコードになり、
// Messageはレスポンスボディの message フィールドになる。
type APIError struct {
	Status  int    // HTTPステータスコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// NewBadRequestError は不正なリクエストエラー（400）を生成する。
// 不正なクレデンシャル、誤ったコンテンツタイプ、未対応メソッドに使用する。
func NewBadRequestError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

// NewUnauthorizedError は認証エラー（401）を生成する。
// client_idを欠いたトークン交換リクエストに使用する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: message}
}

// NewForbiddenError は認可エラー（403）を生成する。
// 未登録クライアントやユーザースコープを持たないトークンに使用する。
func NewForbiddenError(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: message}
}
