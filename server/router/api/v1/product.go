package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ghurfati/ghurfati/store"
)

// UpsertProductRequest is the POST /api/v1/products payload. Embedding is
// optional: when omitted, the title and category are embedded server-side so
// every catalog row lands in the shared matching space.
type UpsertProductRequest struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ImageURL   string    `json:"image_url,omitempty"`
	ProductURL string    `json:"product_url,omitempty"`
	InStock    bool      `json:"in_stock"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ProductResponse is a catalog row without its embedding.
type ProductResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	ImageURL   string  `json:"image_url,omitempty"`
	ProductURL string  `json:"product_url,omitempty"`
	InStock    bool    `json:"in_stock"`
	CreatedTs  int64   `json:"created_ts"`
	UpdatedTs  int64   `json:"updated_ts"`
}

type ListProductsResponse struct {
	Products []*ProductResponse `json:"products"`
}

func convertProduct(product *store.Product) *ProductResponse {
	return &ProductResponse{
		ID:         product.ID,
		Title:      product.Title,
		Category:   product.Category,
		Price:      product.Price,
		Currency:   product.Currency,
		ImageURL:   product.ImageURL,
		ProductURL: product.ProductURL,
		InStock:    product.InStock,
		CreatedTs:  product.CreatedTs,
		UpdatedTs:  product.UpdatedTs,
	}
}

// productText is the text embedded for a catalog row. Regions embed their
// detected captions, so products embed title plus category to land nearby in
// the same space.
func productText(product *store.Product) string {
	return strings.TrimSpace(product.Title + " " + product.Category)
}

// UpsertProduct writes a catalog row and its embedding through the vector
// index. A supplied embedding must match the index dimension; a missing one
// is computed from the title and category.
func (s *APIV1Service) UpsertProduct(c echo.Context) error {
	request := &UpsertProductRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed product request").SetInternal(err)
	}

	product := &store.Product{
		ID:         strings.TrimSpace(request.ID),
		Title:      strings.TrimSpace(request.Title),
		Category:   strings.ToLower(strings.TrimSpace(request.Category)),
		Price:      request.Price,
		Currency:   request.Currency,
		ImageURL:   request.ImageURL,
		ProductURL: request.ProductURL,
		InStock:    request.InStock,
		Embedding:  request.Embedding,
	}
	if product.Currency == "" {
		product.Currency = "AED"
	}
	if err := product.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if len(product.Embedding) == 0 {
		embedding, err := s.Embedder.Embed(ctx, productText(product))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to embed product").SetInternal(err)
		}
		product.Embedding = embedding
	}

	if err := s.Index.Upsert(ctx, product); err != nil {
		var dimErr *store.DimensionError
		if errors.As(err, &dimErr) {
			return echo.NewHTTPError(http.StatusBadRequest, dimErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to upsert product").SetInternal(err)
	}

	created, err := s.Catalog.GetProduct(ctx, product.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read back product").SetInternal(err)
	}
	if created == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("product %s missing after upsert", product.ID))
	}
	return c.JSON(http.StatusOK, convertProduct(created))
}

// ListProducts pages through the catalog, optionally filtered by category
// and stock. limit defaults to 50 and is capped at 200.
func (s *APIV1Service) ListProducts(c echo.Context) error {
	limit, offset := parsePagination(c, 50, 200)
	find := &store.FindProduct{Limit: &limit, Offset: &offset}
	if category := c.QueryParam("category"); category != "" {
		category = strings.ToLower(category)
		find.Category = &category
	}
	if c.QueryParam("in_stock") == "true" {
		find.InStockOnly = true
	}

	products, err := s.Catalog.ListProducts(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list products").SetInternal(err)
	}

	response := &ListProductsResponse{Products: make([]*ProductResponse, 0, len(products))}
	for _, product := range products {
		response.Products = append(response.Products, convertProduct(product))
	}
	return c.JSON(http.StatusOK, response)
}
