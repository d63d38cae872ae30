// Package storage はオブジェクトストレージの抽象化を提供する。
// ゲートウェイはHTTPセマンティクスをこのプリミティブ
// （list/get/head/put/delete）に翻訳するだけで、キャッシュは一切持たない。
package storage

import (
	"context"
	"io"
	"time"
)

// ListPage はプレフィックス配下のオブジェクト一覧の1ページを表す。
type ListPage struct {
	// Keys はこのページに含まれるオブジェクトのフルキー。
	Keys []string
	// Truncated は後続ページが存在するかどうか。
	Truncated bool
	// Cursor は次ページを取得するための不透明なカーソル。
	// Truncatedがfalseの場合は空。
	Cursor string
}

// Object は取得したオブジェクトのメタデータとボディを表す。
type Object struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	// ContentRange はレンジ取得時にストレージが報告した範囲。
	// ストレージの報告をそのまま持ち回り、ローカルでは合成しない。
	ContentRange string
	// Body はオブジェクトのボディストリーム。
	// 条件付きリクエストでストレージがボディを返さなかった場合はnil。
	Body io.ReadCloser
}

// Conditions はGETに付随する条件付き・レンジリクエストのヘッダー値。
// 受信リクエストのヘッダーをそのまま持ち回る。
type Conditions struct {
	Range             string
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   string
	IfUnmodifiedSince string
}

// ObjectStore はオブジェクトストレージのプリミティブ操作。
// Get/Headは対象が存在しない場合 (nil, nil) を返す。
type ObjectStore interface {
	// List はプレフィックス配下のキー一覧を1ページ分返す。
	// cursorには前ページのListPage.Cursorを渡す（先頭ページは空文字列）。
	List(ctx context.Context, prefix, cursor string) (*ListPage, error)

	// Get はオブジェクトを条件付き・レンジ指定で取得する。
	// 条件が一致してストレージがボディを返さなかった場合、
	// Bodyがnilのオブジェクトを返す。
	Get(ctx context.Context, key string, cond Conditions) (*Object, error)

	// Head はオブジェクトのメタデータのみを取得する。Bodyは常にnil。
	Head(ctx context.Context, key string) (*Object, error)

	// Put はオブジェクトを格納し、新しいETagを返す。
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)

	// Delete はオブジェクトを削除する。対象が存在しなくても成功する（冪等）。
	Delete(ctx context.Context, key string) error
}
