package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func putString(t *testing.T, store *MemoryStore, key, body string) string {
	t.Helper()
	etag, err := store.Put(context.Background(), key, strings.NewReader(body), "text/plain")
	if err != nil {
		t.Fatalf("Put(%q) error = %v", key, err)
	}
	return etag
}

func readBody(t *testing.T, obj *Object) string {
	t.Helper()
	if obj.Body == nil {
		t.Fatal("expected object body, got nil")
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(data)
}

func TestMemoryStore_PutGetRoundtrip(t *testing.T) {
	store := NewMemoryStore()
	etag := putString(t, store, "u1/abc/config.json", `{"theme":"dark"}`)

	if etag == "" || !strings.HasPrefix(etag, `"`) {
		t.Errorf("ETag = %q, want quoted value", etag)
	}

	obj, err := store.Get(context.Background(), "u1/abc/config.json", Conditions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if obj == nil {
		t.Fatal("Get() = nil for existing key")
	}
	if obj.ETag != etag {
		t.Errorf("ETag = %q, want %q", obj.ETag, etag)
	}
	if obj.ContentType != "text/plain" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}
	if got := readBody(t, obj); got != `{"theme":"dark"}` {
		t.Errorf("body = %q", got)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	obj, err := store.Get(context.Background(), "u1/abc/missing", Conditions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// 存在しないキーは (nil, nil)
	if obj != nil {
		t.Errorf("Get() = %+v, want nil", obj)
	}
}

func TestMemoryStore_Head(t *testing.T) {
	store := NewMemoryStore()
	etag := putString(t, store, "u1/abc/data", "hello")

	obj, err := store.Head(context.Background(), "u1/abc/data")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if obj == nil {
		t.Fatal("Head() = nil for existing key")
	}
	if obj.Body != nil {
		t.Error("Head() should not return a body")
	}
	if obj.Size != 5 {
		t.Errorf("Size = %d, want 5", obj.Size)
	}
	if obj.ETag != etag {
		t.Errorf("ETag = %q, want %q", obj.ETag, etag)
	}
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	putString(t, store, "u1/abc/data", "hello")

	if err := store.Delete(context.Background(), "u1/abc/data"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	obj, err := store.Get(context.Background(), "u1/abc/data", Conditions{})
	if err != nil {
		t.Fatal(err)
	}
	if obj != nil {
		t.Error("object should be gone after delete")
	}

	// 2回目の削除も成功すること
	if err := store.Delete(context.Background(), "u1/abc/data"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestMemoryStore_PutOverwriteChangesETag(t *testing.T) {
	store := NewMemoryStore()
	first := putString(t, store, "u1/abc/data", "v1")
	second := putString(t, store, "u1/abc/data", "v2")

	if first == second {
		t.Error("ETag should change when content changes")
	}
}

func TestMemoryStore_ListPrefixAndOrder(t *testing.T) {
	store := NewMemoryStore()
	putString(t, store, "u1/abc/b", "1")
	putString(t, store, "u1/abc/a", "2")
	putString(t, store, "u1/abc/c", "3")
	// 別プレフィックスのキーは含まれないこと
	putString(t, store, "u2/abc/x", "4")
	putString(t, store, "u1/def/y", "5")

	page, err := store.List(context.Background(), "u1/abc/", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"u1/abc/a", "u1/abc/b", "u1/abc/c"}
	if len(page.Keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", page.Keys, want)
	}
	for i, key := range want {
		if page.Keys[i] != key {
			t.Errorf("Keys[%d] = %q, want %q", i, page.Keys[i], key)
		}
	}
	if page.Truncated {
		t.Error("page should not be truncated")
	}
}

func TestMemoryStore_ListPagination(t *testing.T) {
	store := NewMemoryStore()
	store.SetPageSize(2)
	putString(t, store, "p/a", "1")
	putString(t, store, "p/b", "2")
	putString(t, store, "p/c", "3")

	page, err := store.List(context.Background(), "p/", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !page.Truncated {
		t.Fatal("first page should be truncated")
	}
	if len(page.Keys) != 2 {
		t.Fatalf("first page Keys = %v", page.Keys)
	}
	if page.Cursor == "" {
		t.Fatal("truncated page should carry a cursor")
	}

	// カーソルを不透明値としてそのまま渡して続きを取得する
	next, err := store.List(context.Background(), "p/", page.Cursor)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if next.Truncated {
		t.Error("last page should not be truncated")
	}
	if len(next.Keys) != 1 || next.Keys[0] != "p/c" {
		t.Errorf("second page Keys = %v, want [p/c]", next.Keys)
	}
}

func TestMemoryStore_GetRange(t *testing.T) {
	store := NewMemoryStore()
	putString(t, store, "u1/abc/data", "0123456789")

	tests := []struct {
		name         string
		header       string
		wantBody     string
		wantRange    string
		wantComplete bool
	}{
		{"先頭からのレンジ", "bytes=0-3", "0123", "bytes 0-3/10", false},
		{"中間のレンジ", "bytes=4-6", "456", "bytes 4-6/10", false},
		{"開始のみ指定", "bytes=7-", "789", "bytes 7-9/10", false},
		{"suffixレンジ", "bytes=-3", "789", "bytes 7-9/10", false},
		{"末尾超過は切り詰め", "bytes=8-100", "89", "bytes 8-9/10", false},
		{"不正な形式は全体を返す", "bytes=abc", "0123456789", "", true},
		{"範囲外の開始は全体を返す", "bytes=100-", "0123456789", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := store.Get(context.Background(), "u1/abc/data", Conditions{Range: tt.header})
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got := readBody(t, obj); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if obj.ContentRange != tt.wantRange {
				t.Errorf("ContentRange = %q, want %q", obj.ContentRange, tt.wantRange)
			}
		})
	}
}

func TestMemoryStore_ConditionalGet(t *testing.T) {
	store := NewMemoryStore()
	etag := putString(t, store, "u1/abc/data", "hello")

	tests := []struct {
		name     string
		cond     Conditions
		wantBody bool
	}{
		{"条件なし", Conditions{}, true},
		// If-None-Matchが現ETagに一致 → ボディを返さない（304相当）
		{"If-None-Match一致", Conditions{IfNoneMatch: etag}, false},
		{"If-None-Match不一致", Conditions{IfNoneMatch: `"other"`}, true},
		{"If-None-Matchワイルドカード", Conditions{IfNoneMatch: "*"}, false},
		// If-Matchが不一致 → ボディを返さない
		{"If-Match一致", Conditions{IfMatch: etag}, true},
		{"If-Match不一致", Conditions{IfMatch: `"other"`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := store.Get(context.Background(), "u1/abc/data", tt.cond)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if obj == nil {
				t.Fatal("Get() = nil for existing key")
			}
			gotBody := obj.Body != nil
			if gotBody != tt.wantBody {
				t.Errorf("body present = %v, want %v", gotBody, tt.wantBody)
			}
			// ボディを返さない場合もメタデータは保持されること
			if obj.ETag != etag {
				t.Errorf("ETag = %q, want %q", obj.ETag, etag)
			}
		})
	}
}
