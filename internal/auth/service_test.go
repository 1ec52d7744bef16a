package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mailbox struct {
	mu       sync.Mutex
	welcomed []string
	resets   []string
	fail     error
}

func (m *mailbox) SendWelcome(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomed = append(m.welcomed, u.Email)
	return m.fail
}

func (m *mailbox) SendPasswordReset(_ context.Context, _ *model.User, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.resets = append(m.resets, link)
	return nil
}

func (m *mailbox) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets)
	u, err := url.Parse(m.resets[len(m.resets)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

func newService(t *testing.T) (*Service, *mailbox, *miniredis.Miniredis) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mb := &mailbox{}
	svc := NewService(Deps{
		DB:          db,
		Redis:       rdb,
		Issuer:      NewIssuer("secret", time.Hour),
		Mailer:      mb,
		ResetTTL:    time.Hour,
		FrontendURL: "https://shop.example/",
		BcryptCost:  bcrypt.MinCost,
	})
	return svc, mb, mr
}

func signup(email string) SignupInput {
	return SignupInput{
		FirstName: "Asha",
		LastName:  "Rao",
		Email:     email,
		Password:  "secret1",
		Phone:     "9876543210",
		Addresses: []AddressInput{{Address: "12 MG Road", Pincode: "560001", City: "Bengaluru", State: "KA", Country: "IN"}},
	}
}

func TestSignupAndLogin(t *testing.T) {
	svc, mb, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Signup(ctx, signup("Asha@Example.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "asha@example.com", sess.User.Email)
	assert.Equal(t, model.RoleCustomer, sess.User.Role)
	assert.NotEqual(t, "secret1", sess.User.PasswordHash)
	assert.Equal(t, []string{"asha@example.com"}, mb.welcomed)

	p, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, p.ID)

	_, err = svc.Signup(ctx, signup("asha@example.com"))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	got, err := svc.Login(ctx, "ASHA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, got.User.ID)

	_, err = svc.Login(ctx, "asha@example.com", "wrong-pass")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newService(t)
	in := signup("a@example.com")
	in.Password = "12345"
	_, err := svc.Signup(context.Background(), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	in = signup("not-an-email")
	_, err = svc.Signup(context.Background(), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSignupSurvivesWelcomeFailure(t *testing.T) {
	svc, mb, _ := newService(t)
	mb.fail = errors.New("smtp down")
	_, err := svc.Signup(context.Background(), signup("a@example.com"))
	require.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, mb, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, signup("a@example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "a@example.com"))
	require.Len(t, mb.resets, 1)
	assert.Contains(t, mb.resets[0], "https://shop.example/reset-password?token=")
	token := mb.lastToken(t)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.ResetPassword(ctx, token, "short")))
	require.NoError(t, svc.ResetPassword(ctx, token, "newsecret"))

	// 令牌只能用一次
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.ResetPassword(ctx, token, "another1")))

	_, err = svc.Login(ctx, "a@example.com", "secret1")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Login(ctx, "a@example.com", "newsecret")
	require.NoError(t, err)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.ForgotPassword(ctx, "ghost@example.com")))
}

func TestResetTokenExpires(t *testing.T) {
	svc, mb, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, signup("a@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.ForgotPassword(ctx, "a@example.com"))
	token := mb.lastToken(t)

	mr.FastForward(2 * time.Hour)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.ResetPassword(ctx, token, "newsecret")))
}

func TestForgotPasswordRevokesTokenWhenMailFails(t *testing.T) {
	svc, mb, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, signup("a@example.com"))
	require.NoError(t, err)

	mb.fail = errors.New("smtp down")
	err = svc.ForgotPassword(ctx, "a@example.com")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Empty(t, mr.Keys())
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	sess, err := svc.Signup(ctx, signup("a@example.com"))
	require.NoError(t, err)
	me := Principal{ID: sess.User.ID, Role: model.RoleCustomer}

	err = svc.ChangePassword(ctx, me, "wrong1", "newsecret")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	require.NoError(t, svc.ChangePassword(ctx, me, "secret1", "newsecret"))
	_, err = svc.Login(ctx, "a@example.com", "newsecret")
	require.NoError(t, err)
}

func TestAdminUserManagement(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	admin := Principal{ID: "admin-1", Role: model.RoleAdmin}

	in := CreateUserInput{SignupInput: signup("staff@example.com"), Role: model.RoleStaff}
	_, err := svc.CreateUser(ctx, Principal{ID: "c", Role: model.RoleCustomer}, in)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	staff, err := svc.CreateUser(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, staff.Role)

	_, err = svc.CreateUser(ctx, admin, CreateUserInput{SignupInput: signup("x@example.com"), Role: "root"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Signup(ctx, signup("c@example.com"))
	require.NoError(t, err)
	list, err := svc.List(ctx, admin, string(model.RoleStaff))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, staff.ID, list[0].ID)

	sess, err := svc.Login(ctx, "staff@example.com", "secret1")
	require.NoError(t, err)

	off, err := svc.SetActive(ctx, admin, staff.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	_, err = svc.Authenticate(ctx, sess.Token)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = svc.Login(ctx, "staff@example.com", "secret1")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.SetActive(ctx, admin, "missing", true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.SetActive(ctx, admin, admin.ID, false)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestEnsureAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.EnsureAdmin(ctx, "Root@Example.com", "rootpass")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	again, err := svc.EnsureAdmin(ctx, "root@example.com", "ignored")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	_, err = svc.Login(ctx, "root@example.com", "rootpass")
	require.NoError(t, err)

	_, err = svc.EnsureAdmin(ctx, "x@example.com", "123")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateUser(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	admin := Principal{ID: "admin-1", Role: model.RoleAdmin}
	staff := Principal{ID: "staff-1", Role: model.RoleStaff}

	a, err := svc.Signup(ctx, signup("asha@example.com"))
	require.NoError(t, err)
	_, err = svc.Signup(ctx, signup("ben@example.com"))
	require.NoError(t, err)
	boss, err := svc.EnsureAdmin(ctx, "boss@example.com", "bosspass")
	require.NoError(t, err)

	first, phone := "Ashwini", " 99999 "
	u, err := svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Ashwini", u.FirstName)
	assert.Equal(t, "Rao", u.LastName)
	assert.Equal(t, "99999", u.Phone)
	require.Len(t, u.Addresses, 1)

	addrs := []AddressInput{
		{Address: "1 Park St", Pincode: "700016", City: "Kolkata", State: "WB", Country: "IN"},
		{Address: "2 Hill Rd", Pincode: "400050", City: "Mumbai", State: "MH", Country: "IN"},
	}
	email := "Asha.Rao@Example.com"
	u, err = svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{Email: &email, Addresses: &addrs})
	require.NoError(t, err)
	assert.Equal(t, "asha.rao@example.com", u.Email)
	require.Len(t, u.Addresses, 2)
	assert.Equal(t, "Mumbai", u.Addresses[1].City)

	_, err = svc.Login(ctx, "asha.rao@example.com", "secret1")
	require.NoError(t, err)

	taken := "ben@example.com"
	_, err = svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{Email: &taken})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	bad := "not-an-email"
	_, err = svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{Email: &bad})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	blank := "  "
	_, err = svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{FirstName: &blank})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.UpdateUser(ctx, staff, a.User.ID, UserPatch{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UpdateUser(ctx, Principal{ID: a.User.ID, Role: model.RoleCustomer}, a.User.ID, UserPatch{FirstName: &first})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = svc.UpdateUser(ctx, staff, boss.ID, UserPatch{FirstName: &first})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = svc.UpdateUser(ctx, admin, boss.ID, UserPatch{FirstName: &first})
	require.NoError(t, err)
	_, err = svc.UpdateUser(ctx, admin, "missing", UserPatch{FirstName: &first})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteUser(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	admin := Principal{ID: "admin-1", Role: model.RoleAdmin}

	sess, err := svc.Signup(ctx, signup("asha@example.com"))
	require.NoError(t, err)

	err = svc.DeleteUser(ctx, Principal{ID: "staff-1", Role: model.RoleStaff}, sess.User.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.DeleteUser(ctx, admin, admin.ID)))

	require.NoError(t, svc.DeleteUser(ctx, admin, sess.User.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.DeleteUser(ctx, admin, sess.User.ID)))

	_, err = svc.Get(ctx, sess.User.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.Authenticate(ctx, sess.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// 邮箱释放后可重新注册
	_, err = svc.Signup(ctx, signup("asha@example.com"))
	require.NoError(t, err)
}
