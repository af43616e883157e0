// Package catalog は商品と国の参照データの読み取りを提供する。
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/bijou/internal/model"
	"github.com/hitoshi/bijou/internal/repository"
)

const (
	// DefaultLimit は商品一覧の既定の件数。
	DefaultLimit = 20
	// MaxLimit は商品一覧で一度に取得できる最大件数。
	MaxLimit = 100
)

// Service はカタログのサービス層。
type Service struct {
	products  repository.ProductRepository
	countries repository.CountryRepository
}

// NewService はServiceを生成する。
func NewService(products repository.ProductRepository, countries repository.CountryRepository) *Service {
	return &Service{products: products, countries: countries}
}

// ListProducts は絞り込み条件に一致する商品を返す。
// Limitは1〜MaxLimitに丸め、負のOffsetは0として扱う。
func (s *Service) ListProducts(ctx context.Context, filter model.ProductFilter) ([]*model.Product, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultLimit
	case filter.Limit > MaxLimit:
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)

	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	if products == nil {
		products = []*model.Product{}
	}
	return products, nil
}

// GetProduct は商品を取得する。
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProductNotFoundError(id)
	}
	return p, nil
}

// ListCountries は全ての国を返す。
func (s *Service) ListCountries(ctx context.Context) ([]*model.Country, error) {
	countries, err := s.countries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("国一覧の取得に失敗しました: %w", err)
	}
	if countries == nil {
		countries = []*model.Country{}
	}
	return countries, nil
}

// GetCountry はISOコードで国を都市一覧付きで取得する。
func (s *Service) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	c, err := s.countries.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("国の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCountryNotFoundError(code)
	}
	return c, nil
}
