package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, productID int64) (*model.Product, error)
	//公開中の商品をページングで取得。総件数も返す。
	ListActive(ctx context.Context, offset int, limit int) ([]model.Product, int64, error)
}
