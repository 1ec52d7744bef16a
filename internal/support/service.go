// Package support 处理客户工单。
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	validate *validator.Validate
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		log:      log.With(zap.String("component", "support")),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type ContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type CreateInput struct {
	Title        string       `json:"title" validate:"required,max=200"`
	Description  string       `json:"description" validate:"required"`
	CustomerInfo ContactInput `json:"customer_info"`
}

type UpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description"`
}

// Create 客户提交工单。联系信息缺省时取账户资料。
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (*model.SupportTicket, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid ticket")
	}

	var u model.User
	err := s.db.WithContext(ctx).Where("id = ?", actor.ID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	info := model.CustomerInfo{Name: in.CustomerInfo.Name, Email: in.CustomerInfo.Email, Phone: in.CustomerInfo.Phone}
	if info.Name == "" {
		info.Name = u.FullName()
	}
	if info.Email == "" {
		info.Email = u.Email
	}
	if info.Phone == "" {
		info.Phone = u.Phone
	}

	t := &model.SupportTicket{
		CustomerID:   actor.ID,
		Title:        in.Title,
		Description:  in.Description,
		Status:       model.TicketPending,
		CustomerInfo: info,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.log.Info("ticket created", zap.String("ticket_id", t.ID), zap.String("customer_id", actor.ID))
	return t, nil
}

// ListByCustomer 客户只能看自己的工单。
func (s *Service) ListByCustomer(ctx context.Context, actor auth.Principal, customerID string) ([]model.SupportTicket, error) {
	if !actor.CanAccess(customerID) {
		return nil, apperr.New(apperr.KindForbidden, "cannot view another customer's tickets")
	}
	var list []model.SupportTicket
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("created_at DESC").Find(&list).Error
	return list, err
}

// List 审核角色查看全部工单，可按状态过滤。
func (s *Service) List(ctx context.Context, actor auth.Principal, status string) ([]model.SupportTicket, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		if !validStatus(model.TicketStatus(status)) {
			return nil, apperr.Newf(apperr.KindValidation, "unknown ticket status %q", status)
		}
		q = q.Where("status = ?", status)
	}
	var list []model.SupportTicket
	return list, q.Find(&list).Error
}

func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (*model.SupportTicket, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(t.CustomerID) {
		return nil, apperr.New(apperr.KindForbidden, "cannot view another customer's ticket")
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, in UpdateInput) (*model.SupportTicket, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid ticket")
	}
	cols := map[string]any{}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, apperr.New(apperr.KindValidation, "title must not be empty")
		}
		cols["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return nil, apperr.New(apperr.KindValidation, "description must not be empty")
		}
		cols["description"] = strings.TrimSpace(*in.Description)
	}
	if len(cols) == 0 {
		return nil, apperr.New(apperr.KindValidation, "nothing to update")
	}
	return s.apply(ctx, id, cols)
}

func (s *Service) SetStatus(ctx context.Context, actor auth.Principal, id string, status model.TicketStatus) (*model.SupportTicket, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if !validStatus(status) {
		return nil, apperr.Newf(apperr.KindValidation, "unknown ticket status %q", status)
	}
	return s.apply(ctx, id, map[string]any{"status": status})
}

func (s *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.SupportTicket{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "ticket not found")
	}
	return nil
}

func (s *Service) apply(ctx context.Context, id string, cols map[string]any) (*model.SupportTicket, error) {
	res := s.db.WithContext(ctx).Model(&model.SupportTicket{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, fmt.Errorf("update ticket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "ticket not found")
	}
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*model.SupportTicket, error) {
	var t model.SupportTicket
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "ticket not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func validStatus(s model.TicketStatus) bool {
	return s == model.TicketPending || s == model.TicketResolved
}
