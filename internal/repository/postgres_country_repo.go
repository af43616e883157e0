package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/bijou/internal/model"
)

// PostgresCountryRepo はPostgreSQLを使用した国リポジトリ。
type PostgresCountryRepo struct {
	db *sql.DB
}

// NewPostgresCountryRepo はPostgresCountryRepoを生成する。
func NewPostgresCountryRepo(db *sql.DB) *PostgresCountryRepo {
	return &PostgresCountryRepo{db: db}
}

// List は全ての国を名前順に返す。
func (r *PostgresCountryRepo) List(ctx context.Context) ([]*model.Country, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, name, phone_format, cities FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("国一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var countries []*model.Country
	for rows.Next() {
		c := &model.Country{}
		var cities pq.StringArray
		if err := rows.Scan(&c.Code, &c.Name, &c.PhoneFormat, &cities); err != nil {
			return nil, fmt.Errorf("国行の読み取りに失敗しました: %w", err)
		}
		c.Cities = []string(cities)
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("国一覧の走査に失敗しました: %w", err)
	}
	return countries, nil
}

// FindByCode はISOコードで国を取得する。見つからない場合はnilを返す。
func (r *PostgresCountryRepo) FindByCode(ctx context.Context, code string) (*model.Country, error) {
	c := &model.Country{}
	var cities pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT code, name, phone_format, cities FROM countries WHERE code = $1`,
		strings.ToUpper(code),
	).Scan(&c.Code, &c.Name, &c.PhoneFormat, &cities)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("国の取得に失敗しました: %w", err)
	}
	c.Cities = []string(cities)
	return c, nil
}

// compile-time interface check
var _ CountryRepository = (*PostgresCountryRepo)(nil)
