package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bijou/internal/model"
)

// PostgresVerificationCodeRepo はPostgreSQLを使用した確認コードリポジトリ。
// 複数インスタンス間で共有され、期限切れのコードはワーカーが削除する。
type PostgresVerificationCodeRepo struct {
	db *sql.DB
}

// NewPostgresVerificationCodeRepo はPostgresVerificationCodeRepoを生成する。
func NewPostgresVerificationCodeRepo(db *sql.DB) *PostgresVerificationCodeRepo {
	return &PostgresVerificationCodeRepo{db: db}
}

// Upsert は確認コードを保存する。既存のコードは置き換えられる。
func (r *PostgresVerificationCodeRepo) Upsert(ctx context.Context, code *model.VerificationCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (user_id, code_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
		    code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at`,
		code.UserID, code.CodeHash, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("確認コードの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByUserID はユーザーの確認コードを取得する。見つからない場合はnilを返す。
func (r *PostgresVerificationCodeRepo) FindByUserID(ctx context.Context, userID string) (*model.VerificationCode, error) {
	code := &model.VerificationCode{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, code_hash, expires_at, created_at
		 FROM verification_codes WHERE user_id = $1`,
		userID,
	).Scan(&code.UserID, &code.CodeHash, &code.ExpiresAt, &code.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("確認コードの取得に失敗しました: %w", err)
	}
	return code, nil
}

// DeleteByUserID はユーザーの確認コードを削除する。存在しない場合もエラーにしない。
func (r *PostgresVerificationCodeRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("確認コードの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VerificationCodeRepository = (*PostgresVerificationCodeRepo)(nil)
