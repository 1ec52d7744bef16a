// Package auth 提供账户注册登录、密码重置与令牌签发。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
	rediskey "storefront/pkg/redis"

	"github.com/go-playground/validator/v10"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Mailer 由 notify.Notifier 实现。
type Mailer interface {
	SendWelcome(ctx context.Context, u *model.User) error
	SendPasswordReset(ctx context.Context, u *model.User, resetURL string) error
}

type Deps struct {
	DB          *gorm.DB
	Redis       *rd.Client
	Issuer      *Issuer
	Mailer      Mailer
	Log         *zap.Logger
	ResetTTL    time.Duration
	FrontendURL string
	// BcryptCost 为 0 时使用 bcrypt.DefaultCost
	BcryptCost int
}

type Service struct {
	db          *gorm.DB
	rdb         *rd.Client
	issuer      *Issuer
	mailer      Mailer
	log         *zap.Logger
	resetTTL    time.Duration
	frontendURL string
	cost        int
	validate    *validator.Validate
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = bcrypt.DefaultCost
	}
	if d.ResetTTL == 0 {
		d.ResetTTL = time.Hour
	}
	return &Service{
		db:          d.DB,
		rdb:         d.Redis,
		issuer:      d.Issuer,
		mailer:      d.Mailer,
		log:         d.Log.With(zap.String("component", "auth")),
		resetTTL:    d.ResetTTL,
		frontendURL: strings.TrimRight(d.FrontendURL, "/"),
		cost:        d.BcryptCost,
		validate:    validator.New(),
	}
}

type AddressInput struct {
	Address string `json:"address" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type SignupInput struct {
	FirstName string         `json:"first_name" validate:"required"`
	LastName  string         `json:"last_name" validate:"required"`
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required,min=6"`
	Phone     string         `json:"phone" validate:"required"`
	Addresses []AddressInput `json:"addresses" validate:"dive"`
}

// CreateUserInput 管理端建号，可指定角色。
type CreateUserInput struct {
	SignupInput
	Role model.Role `json:"role" validate:"omitempty,oneof=customer admin staff"`
}

type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Signup 注册客户账户并签发令牌，欢迎邮件失败只记日志。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid signup input")
	}
	u, err := s.createUser(ctx, in, model.RoleCustomer)
	if err != nil {
		return nil, err
	}
	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, u); err != nil {
			s.log.Warn("send welcome mail", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	token, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}

// CreateUser 管理端创建任意角色账户。
func (s *Service) CreateUser(ctx context.Context, actor Principal, in CreateUserInput) (*model.User, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = model.RoleCustomer
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid user input")
	}
	return s.createUser(ctx, in.SignupInput, in.Role)
}

// EnsureAdmin 启动时的管理员种子账户；已存在则不改动。
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	in := SignupInput{FirstName: "Store", LastName: "Admin", Email: email, Password: password, Phone: "-"}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid admin seed")
	}
	return s.createUser(ctx, in, model.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, in SignupInput, role model.Role) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperr.New(apperr.KindConflict, "email already registered")
	}
	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	addrs := make([]model.Address, 0, len(in.Addresses))
	for _, a := range in.Addresses {
		addrs = append(addrs, model.Address{
			Address: a.Address, Pincode: a.Pincode, City: a.City, State: a.State, Country: a.Country,
		})
	}
	u := &model.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        email,
		PasswordHash: hash,
		Phone:        in.Phone,
		Role:         role,
		IsActive:     true,
		Addresses:    addrs,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			return nil, apperr.New(apperr.KindConflict, "email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user created", zap.String("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

// Login 邮箱密码登录。不区分"用户不存在"与"密码错误"。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.New(apperr.KindValidation, "email and password are required")
	}
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	ok, err := CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account is deactivated")
	}
	token, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: &u}, nil
}

// ForgotPassword 生成一次性重置令牌并发邮件；邮件发不出去时令牌作废并报错。
// 邮箱不存在时返回 NotFound。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return apperr.New(apperr.KindValidation, "a valid email is required")
	}
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.KindNotFound, "no account with that email")
	}
	if err != nil {
		return err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := rediskey.PutResetToken(ctx, s.rdb, token, u.ID, s.resetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, &u, link); err != nil {
		if delErr := rediskey.DeleteResetToken(ctx, s.rdb, token); delErr != nil {
			s.log.Warn("revoke reset token", zap.Error(delErr))
		}
		return apperr.Wrap(apperr.KindInternal, err, "failed to send reset email")
	}
	return nil
}

// ResetPassword 使用一次性令牌设置新密码。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperr.New(apperr.KindValidation, "reset token is required")
	}
	if err := s.validate.Var(newPassword, "required,min=6"); err != nil {
		return apperr.New(apperr.KindValidation, "password must be at least 6 characters")
	}
	userID, found, err := rediskey.TakeResetToken(ctx, s.rdb, token)
	if err != nil {
		return fmt.Errorf("load reset token: %w", err)
	}
	if !found {
		return apperr.New(apperr.KindValidation, "invalid or expired reset token")
	}
	return s.setPassword(ctx, userID, newPassword)
}

// ChangePassword 已登录用户修改密码，需要校验旧密码。
func (s *Service) ChangePassword(ctx context.Context, actor Principal, current, next string) error {
	if err := s.validate.Var(next, "required,min=6"); err != nil {
		return apperr.New(apperr.KindValidation, "password must be at least 6 characters")
	}
	u, err := s.Get(ctx, actor.ID)
	if err != nil {
		return err
	}
	ok, err := CheckPassword(u.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindUnauthorized, "current password is incorrect")
	}
	return s.setPassword(ctx, u.ID, next)
}

func (s *Service) setPassword(ctx context.Context, userID, plain string) error {
	hash, err := HashPassword(plain, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List 审核角色查看账户，可按角色过滤。
func (s *Service) List(ctx context.Context, actor Principal, role string) ([]model.User, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var list []model.User
	return list, q.Find(&list).Error
}

// UserPatch 只更新非 nil 字段。密码走 ChangePassword / ResetPassword，角色与启用状态各有专门入口。
type UserPatch struct {
	FirstName *string         `json:"first_name" validate:"omitempty,min=1"`
	LastName  *string         `json:"last_name"`
	Email     *string         `json:"email" validate:"omitempty,email"`
	Phone     *string         `json:"phone" validate:"omitempty,min=1"`
	Addresses *[]AddressInput `json:"addresses" validate:"omitempty,dive"`
}

// UpdateUser 审核角色修改账户资料；管理员账户只有管理员能改。
func (s *Service) UpdateUser(ctx context.Context, actor Principal, id string, patch UserPatch) (*model.User, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid user")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == model.RoleAdmin && !actor.IsAdmin() {
		return nil, apperr.New(apperr.KindForbidden, "only admins can edit admin accounts")
	}

	cols := map[string]any{}
	if patch.FirstName != nil {
		name := strings.TrimSpace(*patch.FirstName)
		if name == "" {
			return nil, apperr.New(apperr.KindValidation, "first name must not be empty")
		}
		cols["first_name"] = name
	}
	if patch.LastName != nil {
		cols["last_name"] = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		cols["phone"] = strings.TrimSpace(*patch.Phone)
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		var n int64
		err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ? AND id <> ?", email, id).Count(&n).Error
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.New(apperr.KindConflict, "email already registered")
		}
		cols["email"] = email
	}
	if patch.Addresses != nil {
		addrs := make([]model.Address, 0, len(*patch.Addresses))
		for _, a := range *patch.Addresses {
			addrs = append(addrs, model.Address{
				Address: a.Address, Pincode: a.Pincode, City: a.City, State: a.State, Country: a.Country,
			})
		}
		u.Addresses = addrs
	}
	if len(cols) == 0 && patch.Addresses == nil {
		return nil, apperr.New(apperr.KindValidation, "nothing to update")
	}

	// addresses 走 serializer，只能用结构体更新
	if patch.Addresses != nil {
		if err := s.db.WithContext(ctx).Model(u).Select("addresses").Updates(u).Error; err != nil {
			return nil, fmt.Errorf("update addresses: %w", err)
		}
	}
	if len(cols) > 0 {
		err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(cols).Error
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return nil, apperr.New(apperr.KindConflict, "email already registered")
			}
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	s.log.Info("user updated", zap.String("user_id", id), zap.String("by", actor.ID))
	return s.Get(ctx, id)
}

// DeleteUser 删除账户。历史订单和工单只保留用户 ID。
func (s *Service) DeleteUser(ctx context.Context, actor Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if id == actor.ID {
		return apperr.New(apperr.KindValidation, "cannot delete your own account")
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.ID))
	return nil
}

// SetActive 启用或停用账户；停用后令牌立即失效（认证中间件会查库）。
func (s *Service) SetActive(ctx context.Context, actor Principal, id string, active bool) (*model.User, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if id == actor.ID && !active {
		return nil, apperr.New(apperr.KindValidation, "cannot deactivate your own account")
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return s.Get(ctx, id)
}

// Authenticate 解析令牌并确认账户仍然有效。
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	p, err := s.issuer.Parse(token)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid or expired token")
	}
	u, err := s.Get(ctx, p.ID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Principal{}, apperr.New(apperr.KindUnauthorized, "account no longer exists")
		}
		return Principal{}, err
	}
	if !u.IsActive {
		return Principal{}, apperr.New(apperr.KindForbidden, "account is deactivated")
	}
	// 以库里的角色为准，角色变更无需等待令牌过期
	return Principal{ID: u.ID, Role: u.Role}, nil
}
