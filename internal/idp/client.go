// Package idp はアイデンティティプロバイダーのHTTPクライアントを提供する。
// 検証エンドポイント（ベアラートークンの照会）とトークンエンドポイント
// （認可コード交換・リフレッシュ）の2つだけを扱う。
package idp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	validatePath = "/oauth2/validate"
	tokenPath    = "/oauth2/token"

	// maxResponseSize はIdPレスポンスの最大読み取りサイズ。
	// 正常なレスポンスは数百バイトであり、異常な巨大レスポンスから保護する。
	maxResponseSize = 1 << 20
)

// Config はIdPクライアントの設定。
type Config struct {
	// BaseURL はIdPのベースURL（例: "https://id.twitch.tv"）。
	BaseURL string

	// テスト用にオーバーライド可能なURL
	ValidateURL string
	TokenURL    string

	// Observe は呼び出しレイテンシの観測フック。
	// endpointは "validate" または "token"。nilの場合は観測しない。
	Observe func(endpoint string, duration time.Duration)
}

// Response はIdPからの生レスポンスを表す。
// ゲートウェイは上流の失敗を解釈せず、そのまま呼び出し元に返す。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK はレスポンスが成功ステータスかどうかを返す。
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client はIdPへのHTTPクライアント。
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient はIdPクライアントを生成する。
func NewClient(config Config) *Client {
	if config.ValidateURL == "" {
		config.ValidateURL = config.BaseURL + validatePath
	}
	if config.TokenURL == "" {
		config.TokenURL = config.BaseURL + tokenPath
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Validate はauthorization値を検証エンドポイントにそのまま転送し、
// 上流レスポンスを返す。失敗レスポンスの解釈は行わない。
func (c *Client) Validate(ctx context.Context, authorization string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ValidateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create validate request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	return c.do(req, "validate")
}

// Token はフォームをトークンエンドポイントにPOSTし、上流レスポンスを返す。
// client_secretの付与は呼び出し元（トークンプロキシ）の責務。
func (c *Client) Token(ctx context.Context, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, "token")
}

// do はリクエストを実行し、レスポンス全体を読み取って返す。
func (c *Client) do(req *http.Request, endpoint string) (*Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.config.Observe != nil {
		c.config.Observe(endpoint, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("idp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read idp response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
