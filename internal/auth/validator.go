// Package auth はインバウンドクレデンシャルの検証を提供する。
// ベアラートークンはIdPの検証エンドポイントに照会し、
// 拡張アサーションは登録済みシークレットでローカル検証する。
// どちらの経路でもレジストリ照合により登録済みクライアントのみを通す。
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/edgegate/internal/idp"
	"github.com/hitoshi/edgegate/internal/model"
	"github.com/hitoshi/edgegate/internal/registry"
)

// TokenValidator はIdPのトークン検証エンドポイントへの照会インターフェース。
// idp.Clientの部分集合として定義する。
type TokenValidator interface {
	Validate(ctx context.Context, authorization string) (*idp.Response, error)
}

// UpstreamError はIdPの失敗レスポンスをそのまま運ぶエラー。
// ゲートウェイは上流の失敗を解釈せず、呼び出し元にverbatimで返す。
type UpstreamError struct {
	Response *idp.Response
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream validation failed with status %d", e.Response.StatusCode)
}

// Validator はクレデンシャルをIdentityに解決する。
type Validator struct {
	idp      TokenValidator
	registry registry.SecretRegistry
}

// NewValidator はValidatorを生成する。
func NewValidator(tokenValidator TokenValidator, reg registry.SecretRegistry) *Validator {
	return &Validator{
		idp:      tokenValidator,
		registry: reg,
	}
}

// Validate はauthorization値を検証し、Identityを返す。
// 失敗時のエラーは次のいずれか:
//   - *UpstreamError: IdPが検証を拒否した（レスポンスをそのまま返すこと）
//   - *model.APIError: ゲートウェイ自身の判定（未登録クライアント等）
//   - その他: トランスポート障害
func (v *Validator) Validate(ctx context.Context, authorization string) (*model.Identity, error) {
	switch cred := model.ParseCredential(authorization).(type) {
	case model.BearerCredential:
		return v.validateBearer(ctx, cred)
	case model.AssertionCredential:
		return v.validateAssertion(ctx, cred)
	default:
		return nil, model.NewBadRequestError("unsupported credential")
	}
}

// validateBearer は不透明なベアラートークンをIdPに照会して検証する。
// トークン自体は解釈せず、authorization値をそのまま転送する。
func (v *Validator) validateBearer(ctx context.Context, cred model.BearerCredential) (*model.Identity, error) {
	resp, err := v.idp.Validate(ctx, cred.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to validate bearer token: %w", err)
	}
	if !resp.OK() {
		return nil, &UpstreamError{Response: resp}
	}

	identity := &model.Identity{}
	if err := json.Unmarshal(resp.Body, identity); err != nil {
		return nil, fmt.Errorf("failed to parse validation response: %w", err)
	}

	secret, err := v.registry.Lookup(ctx, identity.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if secret == "" {
		return nil, model.NewForbiddenError("unauthorized client")
	}

	identity.Secret = secret
	return identity, nil
}

// validateAssertion は拡張アサーションをローカル検証する。
// 1つ目のJWTから（署名検証せずに）client_idを取り出し、
// そのクライアントの登録済みシークレットで2つ目のJWTを検証する。
func (v *Validator) validateAssertion(ctx context.Context, cred model.AssertionCredential) (*model.Identity, error) {
	clientID, err := decodeClientID(cred.HelixToken)
	if err != nil {
		return nil, model.NewBadRequestError(err.Error())
	}

	secret, err := v.registry.Lookup(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if secret == "" {
		return nil, model.NewBadRequestError("unrecognized client id")
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, model.NewBadRequestError("client secret is not valid base64")
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(cred.Assertion, claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, model.NewBadRequestError(err.Error())
	}

	identity := &model.Identity{
		ClientID: clientID,
		Secret:   secret,
		Claims:   claims,
	}
	if userID, ok := claims["user_id"].(string); ok {
		identity.UserID = userID
	}
	return identity, nil
}

// decodeClientID はJWTのクレームからclient_idを取り出す。
// 発行元を特定するための読み取りであり、署名検証は行わない。
func decodeClientID(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("malformed helix token: %w", err)
	}

	clientID, ok := claims["client_id"].(string)
	if !ok || clientID == "" {
		return "", fmt.Errorf("helix token has no client_id claim")
	}
	return clientID, nil
}
