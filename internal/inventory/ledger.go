// Package inventory 是商品库存的唯一写入口。
// 所有增减都在调用方的事务里用一条条件 UPDATE 完成，读到的库存永远不为负。
package inventory

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/model"

	"gorm.io/gorm"
)

type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// Reserve 原子扣减库存：stock >= qty 才扣，否则不动。
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Newf(apperr.KindValidation, "quantity must be positive: %d", qty)
	}
	res := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("reserve %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// 没扣到：区分商品不存在和库存不足
	var p model.Product
	err := tx.WithContext(ctx).Select("id", "name", "stock").Where("id = ?", productID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Newf(apperr.KindNotFound, "product not found: %s", productID)
	}
	if err != nil {
		return fmt.Errorf("reserve %s: %w", productID, err)
	}
	return apperr.Newf(apperr.KindInsufficientStock, "insufficient stock for product: %s", p.Name)
}

// Release 归还库存。商品已被删除时返回 NotFound，由调用方决定是否忽略。
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Newf(apperr.KindValidation, "quantity must be positive: %d", qty)
	}
	res := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("release %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.KindNotFound, "product not found: %s", productID)
	}
	return nil
}

// Available 读取当前库存。
func (l *Ledger) Available(ctx context.Context, db *gorm.DB, productID string) (int64, error) {
	var p model.Product
	err := db.WithContext(ctx).Select("id", "stock").Where("id = ?", productID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.Newf(apperr.KindNotFound, "product not found: %s", productID)
	}
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}
