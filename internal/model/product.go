package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product はカタログ上の商品を表す。
// 読み取り専用で、更新はシード/管理ツールからのみ行われる。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Color       string
	Material    string
	Images      []string
	InStock     bool
	Featured    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PrimaryImage は先頭の画像URLを返す。画像がない場合は空文字列。
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductFilter は商品一覧の絞り込み条件。
type ProductFilter struct {
	Category string
	Color    string
	Material string
	Featured *bool
	InStock  *bool
	Search   string
	Limit    int
	Offset   int
}

// Country は国の参照データ（電話番号フォーマットと都市一覧を含む）。
type Country struct {
	Code        string
	Name        string
	PhoneFormat string
	Cities      []string
}
