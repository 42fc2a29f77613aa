package service

import (
	"context"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
)

// VocabularySource lists the active colors, sizes and categories.
type VocabularySource interface {
	GetActiveColors(ctx context.Context) ([]model.VariantColor, error)
	GetActiveSizes(ctx context.Context) ([]model.VariantSize, error)
	GetCategoryTree(ctx context.Context) ([]model.Category, error)
}

// DetailAPI reads and updates persisted SKU rows of live products.
type DetailAPI interface {
	GetSizesByColor(ctx context.Context, detailID uint, color string) (*model.SizesByColorResponse, error)
	GetProductByColorPublic(ctx context.Context, detailID uint, color, size string) (*model.ProductDetailQueryResponse, error)
	UpdateProductDetailAdmin(ctx context.Context, detailID uint, req catalogapi.UpdateDetailRequest) (*catalogapi.ActionResponse, error)
}

// ImportAPI drives the server side of a bulk import.
type ImportAPI interface {
	CheckImportDetail(ctx context.Context, req catalogapi.CheckDetailRequest) (*catalogapi.CheckDetailResponse, error)
	PreviewImport(ctx context.Context, file catalogapi.FilePart, zips []catalogapi.FilePart) ([]model.ProductGroup, error)
	SaveImport(ctx context.Context, groups []model.ProductGroup) (*catalogapi.ActionResponse, error)
}

// ProductAPI reads, creates or replaces whole products.
type ProductAPI interface {
	GetProduct(ctx context.Context, productID uint) (*model.ExistingProduct, error)
	CreateProduct(ctx context.Context, sub model.ProductSubmission, files []catalogapi.FilePart) (*catalogapi.ProductResponse, error)
	UpdateProduct(ctx context.Context, productID uint, sub model.ProductSubmission, files []catalogapi.FilePart) (*catalogapi.ProductResponse, error)
}

var (
	_ VocabularySource = (*catalogapi.Client)(nil)
	_ DetailAPI        = (*catalogapi.Client)(nil)
	_ ImportAPI        = (*catalogapi.Client)(nil)
	_ ProductAPI       = (*catalogapi.Client)(nil)
)
