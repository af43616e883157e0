package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bijou/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListProducts(ctx context.Context, filter model.ProductFilter) ([]*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListCountries(ctx context.Context) ([]*model.Country, error)
	GetCountry(ctx context.Context, code string) (*model.Country, error)
}

// CatalogHandler は商品と国の参照データのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListProducts は商品一覧を返す。
// GET /products?category=&color=&material=&featured=&in_stock=&search=&limit=&offset=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ProductFilter{
		Category: q.Get("category"),
		Color:    q.Get("color"),
		Material: q.Get("material"),
		Search:   q.Get("search"),
	}

	var err error
	if filter.Featured, err = parseOptionalBool(q.Get("featured")); err != nil {
		handleServiceError(w, model.NewValidationError("featuredはtrueまたはfalseで指定してください。"))
		return
	}
	if filter.InStock, err = parseOptionalBool(q.Get("in_stock")); err != nil {
		handleServiceError(w, model.NewValidationError("in_stockはtrueまたはfalseで指定してください。"))
		return
	}
	if filter.Limit, err = parseOptionalInt(q.Get("limit")); err != nil {
		handleServiceError(w, model.NewValidationError("limitは整数で指定してください。"))
		return
	}
	if filter.Offset, err = parseOptionalInt(q.Get("offset")); err != nil {
		handleServiceError(w, model.NewValidationError("offsetは整数で指定してください。"))
		return
	}

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct は商品詳細を返す。
// GET /products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// ListCountries は国一覧を返す。都市一覧は含めない。
// GET /countries
func (h *CatalogHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.service.ListCountries(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]countryResponse, 0, len(countries))
	for _, c := range countries {
		resp = append(resp, toCountryResponse(c, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCountry は都市一覧付きで国を返す。
// GET /countries/{code}
func (h *CatalogHandler) GetCountry(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCountry(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCountryResponse(c, true))
}

func parseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func parseOptionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
