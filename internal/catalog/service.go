// Package catalog 管理商品与分类。库存只能经 inventory.Ledger 增减。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// MaxBestSellers 同时标记为畅销的商品上限
	MaxBestSellers = 10
)

// Restocker 在事务内给商品加库存。
type Restocker interface {
	Release(ctx context.Context, tx *gorm.DB, productID string, qty int) error
}

type Service struct {
	tx       *store.TxRunner
	db       *gorm.DB
	stock    Restocker
	log      *zap.Logger
	validate *validator.Validate
}

func NewService(tx *store.TxRunner, stock Restocker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tx:       tx,
		db:       tx.DB(),
		stock:    stock,
		log:      log.With(zap.String("component", "catalog")),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type ProductInput struct {
	Name        string          `json:"name" validate:"required,max=128"`
	Description string          `json:"description"`
	CategoryID  string          `json:"category_id"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock" validate:"gte=0"`
	// IsActive 缺省为 true
	IsActive *bool `json:"is_active"`
}

// ProductPatch 只更新非 nil 字段；库存不在这里改。
type ProductPatch struct {
	Name        *string          `json:"name" validate:"omitempty,max=128"`
	Description *string          `json:"description"`
	CategoryID  *string          `json:"category_id"`
	Price       *decimal.Decimal `json:"price"`
	IsActive    *bool            `json:"is_active"`
}

type ProductFilter struct {
	CategoryID string
	Query      string
	// IncludeInactive 仅审核角色可用
	IncludeInactive bool
	Page            int
	Limit           int
}

type ProductPage struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (s *Service) CreateProduct(ctx context.Context, actor auth.Principal, in ProductInput) (*model.Product, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid product")
	}
	if in.Price.IsNegative() {
		return nil, apperr.New(apperr.KindValidation, "price must not be negative")
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	p := &model.Product{
		Name:        in.Name,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		IsActive:    true,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		// bool 零值会被 default:true 覆盖，单独落库
		if in.IsActive != nil && !*in.IsActive {
			p.IsActive = false
			return tx.Model(p).UpdateColumn("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.log.Info("product created", zap.String("product_id", p.ID), zap.Int64("stock", p.Stock))
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "product not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) (*ProductPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	q := s.db.WithContext(ctx).Model(&model.Product{})
	if !f.IncludeInactive {
		q = q.Where("is_active = ? AND hidden = ?", true, false)
	}
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Query != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var items []model.Product
	err := q.Order("created_at DESC").Offset((f.Page - 1) * f.Limit).Limit(f.Limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &ProductPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor auth.Principal, id string, patch ProductPatch) (*model.Product, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid product")
	}
	cols := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.New(apperr.KindValidation, "name must not be empty")
		}
		cols["name"] = name
	}
	if patch.Description != nil {
		cols["description"] = *patch.Description
	}
	if patch.CategoryID != nil {
		if err := s.checkCategory(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
		cols["category_id"] = *patch.CategoryID
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return nil, apperr.New(apperr.KindValidation, "price must not be negative")
		}
		cols["price"] = patch.Price.Round(2)
	}
	if patch.IsActive != nil {
		cols["is_active"] = *patch.IsActive
	}
	if len(cols) == 0 {
		return nil, apperr.New(apperr.KindValidation, "nothing to update")
	}

	res := s.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, fmt.Errorf("update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "product not found")
	}
	return s.GetProduct(ctx, id)
}

// ListActiveProducts 前台可见的全部商品。
func (s *Service) ListActiveProducts(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND hidden = ?", true, false).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// ListBestSellers 前台可见的畅销商品，最多 MaxBestSellers 个。
func (s *Service) ListBestSellers(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	err := s.db.WithContext(ctx).
		Where("best_seller = ? AND is_active = ? AND hidden = ?", true, true, false).
		Order("updated_at DESC").
		Limit(MaxBestSellers).
		Find(&list).Error
	return list, err
}

// ToggleBestSeller 切换畅销标记。上限检查和写入在同一事务里，并发标记不会超过 MaxBestSellers。
func (s *Service) ToggleBestSeller(ctx context.Context, actor auth.Principal, id string) (*model.Product, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	var p model.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.loadProduct(tx, id, &p); err != nil {
			return err
		}
		if !p.BestSeller {
			var n int64
			err := tx.Model(&model.Product{}).Where("best_seller = ? AND id <> ?", true, id).Count(&n).Error
			if err != nil {
				return err
			}
			if n >= MaxBestSellers {
				return apperr.Newf(apperr.KindConflict, "cannot have more than %d bestseller products", MaxBestSellers)
			}
		}
		p.BestSeller = !p.BestSeller
		return tx.Model(&p).Update("best_seller", p.BestSeller).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("bestseller toggled", zap.String("product_id", id), zap.Bool("best_seller", p.BestSeller))
	return &p, nil
}

// ToggleHidden 切换前台隐藏。
func (s *Service) ToggleHidden(ctx context.Context, actor auth.Principal, id string) (*model.Product, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	var p model.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.loadProduct(tx, id, &p); err != nil {
			return err
		}
		p.Hidden = !p.Hidden
		return tx.Model(&p).Update("hidden", p.Hidden).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) loadProduct(tx *gorm.DB, id string, p *model.Product) error {
	err := tx.Where("id = ?", id).Take(p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.KindNotFound, "product not found")
	}
	return err
}

// Restock 原子加库存，与下单扣减走同一个账本。
func (s *Service) Restock(ctx context.Context, actor auth.Principal, id string, qty int) (*model.Product, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	var p model.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.stock.Release(ctx, tx, id, qty); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&p).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("product restocked", zap.String("product_id", id), zap.Int("qty", qty), zap.Int64("stock", p.Stock))
	return &p, nil
}

// DeleteProduct 软删除。已下单的订单保留商品快照，不受影响。
func (s *Service) DeleteProduct(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "product not found")
	}
	return nil
}

func (s *Service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindValidation, "category does not exist")
	}
	return nil
}
