package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// defaultPageSize はMemoryStoreの一覧ページサイズ。
const defaultPageSize = 1000

// memObject はMemoryStoreに格納されたオブジェクト。
type memObject struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
}

// MemoryStore はローカル開発とテストのためのインメモリObjectStore実装。
// ETag生成・条件付きリクエスト・レンジ取得のセマンティクスはS3に合わせる。
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]*memObject
	pageSize int
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]*memObject),
		pageSize: defaultPageSize,
	}
}

// SetPageSize は一覧ページサイズを変更する。ページネーションのテスト用。
func (m *MemoryStore) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// List はプレフィックス配下のキーを辞書順で1ページ分返す。
// カーソルは前ページ最終キーであり、呼び出し側からは不透明値として扱う。
func (m *MemoryStore) List(_ context.Context, prefix, cursor string) (*ListPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	page := &ListPage{}
	if len(keys) > m.pageSize {
		page.Keys = keys[:m.pageSize]
		page.Truncated = true
		page.Cursor = keys[m.pageSize-1]
	} else {
		page.Keys = keys
	}
	return page, nil
}

// Get はオブジェクトを条件付き・レンジ指定で取得する。
func (m *MemoryStore) Get(_ context.Context, key string, cond Conditions) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, nil
	}

	meta := &Object{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}

	// 条件が一致した場合はボディを返さない（ハンドラー側で304になる）
	if !conditionsAllowBody(obj, cond) {
		return meta, nil
	}

	data := obj.data
	if start, end, ok := parseRange(cond.Range, int64(len(data))); ok {
		data = data[start : end+1]
		meta.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, len(obj.data))
		meta.Size = int64(len(data))
	}

	meta.Body = io.NopCloser(bytes.NewReader(data))
	return meta, nil
}

// Head はオブジェクトのメタデータのみを取得する。
func (m *MemoryStore) Head(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	return &Object{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// Put はオブジェクトを格納し、新しいETagを返す。
func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read object body: %w", err)
	}

	obj := &memObject{
		data:         data,
		etag:         fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(data))),
		contentType:  contentType,
		lastModified: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
	return obj.etag, nil
}

// Delete はオブジェクトを削除する。存在しないキーの削除も成功する。
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// conditionsAllowBody は条件付きヘッダーの評価結果としてボディを返すべきかを判定する。
func conditionsAllowBody(obj *memObject, cond Conditions) bool {
	if cond.IfNoneMatch != "" && etagMatches(cond.IfNoneMatch, obj.etag) {
		return false
	}
	if cond.IfMatch != "" && !etagMatches(cond.IfMatch, obj.etag) {
		return false
	}
	if t, ok := parseHTTPTime(cond.IfModifiedSince); ok && !obj.lastModified.Truncate(time.Second).After(t) {
		return false
	}
	return true
}

// etagMatches はヘッダー値（カンマ区切りまたは *）がETagに一致するかを判定する。
func etagMatches(headerValue, etag string) bool {
	for _, candidate := range strings.Split(headerValue, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// parseRange は単一レンジの "bytes=start-end" 形式をパースする。
// 対応できない形式や範囲外の場合は ok=false を返し、呼び出し側は全体を返す。
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	// suffixレンジ "bytes=-N"（末尾Nバイト）
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, size > 0
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}

// インターフェース実装のコンパイル時チェック
var _ ObjectStore = (*MemoryStore)(nil)
