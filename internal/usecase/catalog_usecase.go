package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// カタログ（商品・カテゴリ）の薄い参照系。
// セッション・レート制御コアから見ると単なる下流のハンドラ。
type CatalogUsecase struct {
	productRepo  repo.ProductRepository
	categoryRepo repo.CategoryRepository
	auditRepo    repo.AuditLogRepository
}

// DI
func NewCatalogUsecase(
	productRepo repo.ProductRepository,
	categoryRepo repo.CategoryRepository,
	auditRepo repo.AuditLogRepository,
) *CatalogUsecase {
	return &CatalogUsecase{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		auditRepo:    auditRepo,
	}
}

type ListProductsInput struct {
	Page  int
	Limit int
}

type ListProductsOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (uc *CatalogUsecase) ListProducts(ctx context.Context, in ListProductsInput) (*ListProductsOutput, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}

	limit := in.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	items, total, err := uc.productRepo.ListActive(ctx, offset, limit)
	if err != nil {
		return nil, NewHTTPError(500, "internal error")
	}

	return &ListProductsOutput{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (uc *CatalogUsecase) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	if productID <= 0 {
		return nil, NewHTTPError(400, "invalid product id")
	}

	p, err := uc.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repo.ErrProductNotFound) {
			return nil, NewHTTPError(404, "product not found")
		}
		return nil, NewHTTPError(500, "internal error")
	}

	return p, nil
}

func (uc *CatalogUsecase) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := uc.categoryRepo.List(ctx)
	if err != nil {
		return nil, NewHTTPError(500, "internal error")
	}
	return categories, nil
}

type CreateProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	CategoryID  *int64 `json:"category_id"`
}

// 管理者専用。呼び出し側でRequireAdminを通っている前提。
func (uc *CatalogUsecase) CreateProduct(ctx context.Context, actor *model.User, in CreateProductInput) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewHTTPError(400, "name is required")
	}
	if in.Price < 0 {
		return nil, NewHTTPError(400, "price must be >= 0")
	}

	p := &model.Product{
		Name:        name,
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		IsActive:    true,
	}

	if err := uc.productRepo.Create(ctx, p); err != nil {
		return nil, NewHTTPError(500, "internal error")
	}

	//管理者操作は監査ログに残す（ベストエフォート）
	_ = uc.auditRepo.Create(ctx, &model.AuditLog{
		UserID:    actor.ID,
		Action:    model.AuditActionCreateProduct,
		CreatedAt: time.Now(),
	})

	return p, nil
}
