package order

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type ListFilter struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
}

type Page struct {
	Items []model.Order `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type CustomerSummary struct {
	CustomerID  string          `json:"customer_id"`
	TotalOrders int64           `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
}

type Summary struct {
	TotalOrders  int64                       `json:"total_orders"`
	TotalRevenue decimal.Decimal             `json:"total_revenue"`
	ByStatus     map[model.OrderStatus]int64 `json:"by_status"`
}

// 取消与退款的订单不计入营收
var nonRevenueStatuses = []model.OrderStatus{model.OrderCancelled, model.OrderRefunded}

// Get 客户只能看自己的订单。
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (*model.Order, error) {
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.CustomerID) {
		return nil, apperr.New(apperr.KindForbidden, "order belongs to another customer")
	}
	return o, nil
}

// List 管理端分页列表，可按状态过滤，按创建时间倒序。
func (s *Service) List(ctx context.Context, actor auth.Principal, f ListFilter) (*Page, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	f.normalize()
	q := s.db.WithContext(ctx).Model(&model.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return s.page(q, f)
}

// ListByCustomer 某客户的全部订单。
func (s *Service) ListByCustomer(ctx context.Context, actor auth.Principal, customerID string) ([]model.Order, error) {
	if !actor.CanAccess(customerID) {
		return nil, apperr.New(apperr.KindForbidden, "cannot list another customer's orders")
	}
	var list []model.Order
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("created_at DESC").Find(&list).Error
	return list, err
}

func (s *Service) CustomerSummary(ctx context.Context, actor auth.Principal, customerID string) (*CustomerSummary, error) {
	if !actor.CanAccess(customerID) {
		return nil, apperr.New(apperr.KindForbidden, "cannot view another customer's summary")
	}
	out := &CustomerSummary{CustomerID: customerID, TotalSpent: decimal.Zero}
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Order{}).Where("customer_id = ?", customerID).Count(&out.TotalOrders).Error; err != nil {
		return nil, err
	}
	var totals []decimal.Decimal
	err := db.Model(&model.Order{}).
		Where("customer_id = ? AND status NOT IN ?", customerID, nonRevenueStatuses).
		Pluck("total_amount", &totals).Error
	if err != nil {
		return nil, err
	}
	out.TotalSpent = decimal.Sum(decimal.Zero, totals...)
	return out, nil
}

// Summary 全站订单统计。
func (s *Service) Summary(ctx context.Context, actor auth.Principal) (*Summary, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	out := &Summary{TotalRevenue: decimal.Zero, ByStatus: map[model.OrderStatus]int64{}}

	var rows []struct {
		Status model.OrderStatus
		Count  int64
	}
	if err := db.Model(&model.Order{}).Select("status, count(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.TotalOrders += r.Count
	}

	var totals []decimal.Decimal
	if err := db.Model(&model.Order{}).Where("status NOT IN ?", nonRevenueStatuses).Pluck("total_amount", &totals).Error; err != nil {
		return nil, err
	}
	out.TotalRevenue = decimal.Sum(decimal.Zero, totals...)
	return out, nil
}

// ListReturns 带退货申请的订单，可按申请状态过滤。
func (s *Service) ListReturns(ctx context.Context, actor auth.Principal, f ListFilter) (*Page, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	f.normalize()
	q := s.db.WithContext(ctx).Model(&model.Order{}).Where("return_status <> ''")
	if f.Status != "" {
		q = q.Where("return_status = ?", f.Status)
	}
	return s.page(q, f)
}

// MyReturns 当前客户发起过的退货。
func (s *Service) MyReturns(ctx context.Context, actor auth.Principal) ([]model.Order, error) {
	var list []model.Order
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND return_status <> ''", actor.ID).
		Order("updated_at DESC").
		Find(&list).Error
	return list, err
}

func (s *Service) page(q *gorm.DB, f ListFilter) (*Page, error) {
	out := &Page{Page: f.Page, Limit: f.Limit}
	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return nil, err
	}
	err := q.Order("created_at DESC").Offset((f.Page - 1) * f.Limit).Limit(f.Limit).Find(&out.Items).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
