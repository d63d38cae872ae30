package model

// Identity はクレデンシャル検証の結果を表す。
// クライアント帰属と（ユーザートークンの場合）ユーザー帰属、
// およびそのクライアントに登録されたシークレットを保持する。
// リクエストのライフタイムを超えて保持してはならない。
type Identity struct {
	// ClientID はクレデンシャルを発行したクライアントのID。
	ClientID string `json:"client_id"`
	// UserID はエンドユーザーのID。アプリレベルトークンの場合は空。
	UserID string `json:"user_id,omitempty"`
	// Login はユーザーのログイン名。IdP検証レスポンスに含まれる場合のみ。
	Login string `json:"login,omitempty"`
	// Scopes はトークンに付与されたスコープ。
	Scopes []string `json:"scopes,omitempty"`
	// ExpiresIn はトークンの残り有効期間（秒）。
	ExpiresIn int `json:"expires_in,omitempty"`
	// Secret はクライアントに登録されたコンフィデンシャルシークレット。
	// レスポンスとしてクライアントに返してはならない。
	Secret string `json:"-"`
	// Claims は拡張アサーションのデコード済みクレーム。ベアラートークンの場合はnil。
	Claims map[string]any `json:"-"`
}

// HasUser はユーザー帰属を持つIdentityかどうかを返す。
// ストレージゲートウェイはユーザー帰属のないIdentityを拒否する。
func (i *Identity) HasUser() bool {
	return i.UserID != ""
}
