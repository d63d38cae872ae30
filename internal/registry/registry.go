// Package registry はクライアントシークレットレジストリを提供する。
// client_idから、このゲートウェイだけが知るコンフィデンシャルシークレットを引く。
// レジストリはデプロイ環境が所有し、ゲートウェイからは読み取り専用。
package registry

import (
	"context"
	"database/sql"
	"fmt"
)

// SecretRegistry はclient_idから登録済みシークレットを引くインターフェース。
type SecretRegistry interface {
	// Lookup は指定クライアントの登録済みシークレットを返す。
	// 未登録の場合は空文字列を返す（エラーではない）。
	Lookup(ctx context.Context, clientID string) (string, error)
}

// StaticRegistry は環境変数から注入されたマップを使うレジストリ。
type StaticRegistry struct {
	secrets map[string]string
}

// NewStaticRegistry はStaticRegistryを生成する。
// secretsはコピーされず参照のみ保持するため、呼び出し後に変更してはならない。
func NewStaticRegistry(secrets map[string]string) *StaticRegistry {
	return &StaticRegistry{secrets: secrets}
}

// Lookup は指定クライアントの登録済みシークレットを返す。
func (r *StaticRegistry) Lookup(_ context.Context, clientID string) (string, error) {
	return r.secrets[clientID], nil
}

// PostgresRegistry はPostgreSQLのclientsテーブルを使うレジストリ。
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry はPostgresRegistryを生成する。
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Lookup は指定クライアントの登録済みシークレットを返す。
// 未登録の場合は空文字列を返す。
func (r *PostgresRegistry) Lookup(ctx context.Context, clientID string) (string, error) {
	var secret string
	err := r.db.QueryRowContext(ctx,
		`SELECT secret FROM clients WHERE client_id = $1`,
		clientID,
	).Scan(&secret)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up client secret: %w", err)
	}

	return secret, nil
}

// インターフェース実装のコンパイル時チェック
var (
	_ SecretRegistry = (*StaticRegistry)(nil)
	_ SecretRegistry = (*PostgresRegistry)(nil)
)
