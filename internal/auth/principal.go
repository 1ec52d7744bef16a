package auth

import (
	"storefront/internal/apperr"
	"storefront/internal/model"
)

// Principal 是认证中间件注入的调用者身份，核心业务无条件信任它。
type Principal struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

// IsReviewer admin 与 staff 可以审核退货、管理订单。
func (p Principal) IsReviewer() bool {
	return p.Role == model.RoleAdmin || p.Role == model.RoleStaff
}

func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

func (p Principal) IsCustomer() bool { return p.Role == model.RoleCustomer }

// RequireReviewer 非审核角色返回 Forbidden。
func (p Principal) RequireReviewer() error {
	if !p.IsReviewer() {
		return apperr.New(apperr.KindForbidden, "reviewer role required")
	}
	return nil
}

func (p Principal) RequireAdmin() error {
	if !p.IsAdmin() {
		return apperr.New(apperr.KindForbidden, "admin role required")
	}
	return nil
}

// CanAccess 客户只能访问自己的资源，审核角色不受限。
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsReviewer() || p.ID == ownerID
}
