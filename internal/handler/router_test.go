package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/edgegate/internal/gateway"
	"github.com/hitoshi/edgegate/internal/idp"
	"github.com/hitoshi/edgegate/internal/model"
	"github.com/hitoshi/edgegate/internal/registry"
	"github.com/hitoshi/edgegate/internal/storage"
	"github.com/hitoshi/edgegate/internal/tokenproxy"
)

// fakeValidator は固定結果を返すCredentialValidator。
type fakeValidator struct {
	identity *model.Identity
	err      error

	called bool
}

func (f *fakeValidator) Validate(_ context.Context, _ string) (*model.Identity, error) {
	f.called = true
	return f.identity, f.err
}

// fakeTokenSender は固定レスポンスを返すTokenSender。
type fakeTokenSender struct {
	response *idp.Response
}

func (f *fakeTokenSender) Token(_ context.Context, _ url.Values) (*idp.Response, error) {
	return f.response, nil
}

func newTestRouter(validator *fakeValidator, store storage.ObjectStore) http.Handler {
	reg := registry.NewStaticRegistry(map[string]string{"abc": "c2VjcmV0"})
	proxy := tokenproxy.NewProxy(&fakeTokenSender{
		response: &idp.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)},
	}, reg)

	deps := &RouterDeps{
		Validator:  validator,
		TokenProxy: proxy,
	}
	if store != nil {
		deps.StorageGateway = gateway.NewGateway(store)
	}
	return NewRouter(deps)
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(&fakeValidator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestRouter_OptionsPreflightShortCircuits(t *testing.T) {
	validator := &fakeValidator{}
	router := newTestRouter(validator, storage.NewMemoryStore())

	req := httptest.NewRequest(http.MethodOptions, "/any/path", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight should carry CORS headers")
	}
	// プリフライトはクレデンシャル検証に到達しないこと
	if validator.called {
		t.Error("validator should not be called for OPTIONS")
	}
}

func TestRouter_OAuth2UnknownSubpath(t *testing.T) {
	router := newTestRouter(&fakeValidator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_OAuth2TokenWrongMethod(t *testing.T) {
	router := newTestRouter(&fakeValidator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRouter_TokenExchangeBypassesAuth(t *testing.T) {
	validator := &fakeValidator{err: model.NewForbiddenError("should not matter")}
	router := newTestRouter(validator, nil)

	form := url.Values{}
	form.Set("client_id", "abc")
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	// トークンプロキシはクレデンシャル検証の対象外であること
	if validator.called {
		t.Error("validator should not be called for token exchange")
	}
}

func TestRouter_EBSReservedPath(t *testing.T) {
	router := newTestRouter(&fakeValidator{}, nil)

	for _, path := range []string{"/ebs", "/ebs/anything"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s: status = %d, want 501", path, rec.Code)
		}
	}
}

func TestRouter_StorageRequiresValidation(t *testing.T) {
	validator := &fakeValidator{err: model.NewForbiddenError("unauthorized client")}
	store := storage.NewMemoryStore()
	router := newTestRouter(validator, store)

	req := httptest.NewRequest(http.MethodGet, "/config.json", nil)
	req.Header.Set("Authorization", "OAuth bad-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !validator.called {
		t.Error("validator should be called for storage routes")
	}
}

func TestRouter_StorageRoundtripThroughFullStack(t *testing.T) {
	validator := &fakeValidator{identity: &model.Identity{ClientID: "abc", UserID: "12345"}}
	store := storage.NewMemoryStore()
	router := newTestRouter(validator, store)

	putReq := httptest.NewRequest(http.MethodPut, "/config.json", strings.NewReader(`{"theme":"dark"}`))
	putReq.Header.Set("Authorization", "OAuth token")
	putReq.Header.Set("Content-Type", "application/json")
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)

	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", putRec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/config.json", nil)
	getReq.Header.Set("Authorization", "OAuth token")
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getRec.Code)
	}
	if getRec.Body.String() != `{"theme":"dark"}` {
		t.Errorf("GET body = %q", getRec.Body.String())
	}
}

func TestRouter_AuthGateWithoutMetricsCollector(t *testing.T) {
	// メトリクス未設定のデプロイでも認証ゲートが機能すること
	// （nilコレクターの記録呼び出しで500にならない）
	validator := &fakeValidator{identity: &model.Identity{ClientID: "abc", UserID: "12345"}}
	router := newTestRouter(validator, storage.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPut, "/secret", strings.NewReader("value"))
	req.Header.Set("Authorization", "OAuth token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", rec.Code)
	}

	// 検証失敗の経路も同様に500にならないこと
	rejecting := &fakeValidator{err: model.NewForbiddenError("unauthorized client")}
	router = newTestRouter(rejecting, storage.NewMemoryStore())

	req = httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("Authorization", "OAuth bad")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_StorageDisabled(t *testing.T) {
	validator := &fakeValidator{identity: &model.Identity{ClientID: "abc", UserID: "12345"}}
	router := newTestRouter(validator, nil)

	req := httptest.NewRequest(http.MethodGet, "/config.json", nil)
	req.Header.Set("Authorization", "OAuth token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// ストレージ未設定のデプロイでは404
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_StaticAssets(t *testing.T) {
	static := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("asset:" + r.URL.Path))
	})

	reg := registry.NewStaticRegistry(map[string]string{"abc": "c2VjcmV0"})
	proxy := tokenproxy.NewProxy(&fakeTokenSender{
		response: &idp.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)},
	}, reg)
	router := NewRouter(&RouterDeps{
		Validator:  &fakeValidator{},
		TokenProxy: proxy,
		Static:     static,
	})

	req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// /assetsプレフィックスが剥がされて委譲されること
	if rec.Body.String() != "asset:/app.js" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
