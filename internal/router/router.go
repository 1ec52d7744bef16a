// Package router 注册全部 HTTP 路由，handler 只做参数解析与响应封装。
package router

import (
	"net/http"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/storage"
	"storefront/internal/support"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Auth    *auth.Service
	Catalog *catalog.Service
	Orders  *order.Service
	Support *support.Service
	Uploads *storage.LocalStore
	Redis   *rd.Client
	Log     *zap.Logger

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
}

var (
	reviewers = []model.Role{model.RoleAdmin, model.RoleStaff}
	admins    = []model.Role{model.RoleAdmin}
	customers = []model.Role{model.RoleCustomer}
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r.Use(middleware.Logger(d.Log))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	if d.Uploads != nil {
		r.Static("/"+storage.PublicPrefix, d.Uploads.Dir())
	}

	authn := middleware.Authenticate(d.Auth)
	reviewer := middleware.Authorize(reviewers...)
	admin := middleware.Authorize(admins...)
	customer := middleware.Authorize(customers...)

	api := r.Group("/api")

	a := api.Group("/auth")
	a.POST("/signup", signup(d.Auth))
	a.POST("/login", login(d.Auth))
	a.POST("/forgot-password", forgotPassword(d.Auth))
	a.POST("/reset-password", resetPassword(d.Auth))
	a.POST("/change-password", authn, changePassword(d.Auth))

	u := api.Group("/users", authn)
	u.GET("/me", me(d.Auth))
	u.GET("", reviewer, listUsers(d.Auth))
	u.POST("", admin, createUser(d.Auth))
	u.GET("/:id", reviewer, getUser(d.Auth))
	u.PUT("/:id", reviewer, updateUser(d.Auth))
	u.DELETE("/:id", admin, deleteUser(d.Auth))
	u.PATCH("/:id/active", admin, setUserActive(d.Auth))

	cat := api.Group("/categories")
	cat.GET("", listCategories(d.Catalog))
	cat.GET("/:id", getCategory(d.Catalog))
	cat.POST("", authn, reviewer, createCategory(d.Catalog))
	cat.PUT("/:id", authn, reviewer, updateCategory(d.Catalog))
	cat.DELETE("/:id", authn, reviewer, deleteCategory(d.Catalog))

	p := api.Group("/products")
	p.GET("", listProducts(d.Catalog))
	p.GET("/active", activeProducts(d.Catalog))
	p.GET("/bestsellers", bestSellers(d.Catalog))
	p.GET("/:id", getProduct(d.Catalog))
	p.POST("", authn, reviewer, createProduct(d.Catalog))
	p.PATCH("/:id", authn, reviewer, updateProduct(d.Catalog))
	p.POST("/:id/restock", authn, reviewer, restockProduct(d.Catalog))
	p.PATCH("/:id/bestseller", authn, reviewer, toggleBestSeller(d.Catalog))
	p.PATCH("/:id/hidden", authn, reviewer, toggleHidden(d.Catalog))
	p.DELETE("/:id", authn, admin, deleteProduct(d.Catalog))

	o := api.Group("/orders", authn)
	o.POST("", reviewer, createOrder(d.Orders))
	o.POST("/checkout", customer,
		middleware.RedisRateLimit(d.Redis, "checkout", d.CheckoutRateLimit, d.CheckoutRateWindow, d.Log),
		checkout(d.Orders))
	o.GET("", reviewer, listOrders(d.Orders))
	o.GET("/summary", reviewer, orderSummary(d.Orders))
	o.GET("/mine", customer, myOrders(d.Orders))
	o.GET("/customer/:id", reviewer, customerOrders(d.Orders))
	o.GET("/customer/:id/summary", customerSummary(d.Orders))
	o.GET("/returns", reviewer, listReturns(d.Orders))
	o.GET("/returns/mine", customer, myReturns(d.Orders))
	o.GET("/:id", getOrder(d.Orders))
	o.PATCH("/:id/status", reviewer, changeStatus(d.Orders))
	o.PATCH("/:id/shipping-address", reviewer, updateShippingAddress(d.Orders))
	o.DELETE("/:id", admin, deleteOrder(d.Orders))
	o.POST("/:id/returns", customer, submitReturn(d.Orders, d.Uploads, d.Log))
	o.POST("/:id/returns/approve", reviewer, approveReturn(d.Orders))
	o.POST("/:id/returns/reject", reviewer, rejectReturn(d.Orders))
	o.POST("/:id/returns/complete", reviewer, completeReturn(d.Orders))
	o.POST("/:id/returns/cancel", customer, cancelReturn(d.Orders))

	pay := api.Group("/payments", authn)
	pay.POST("/intents", createIntent(d.Orders))
	pay.POST("/verify", verifyPayment(d.Orders))
	pay.GET("/orphaned", reviewer, orphanedIntents(d.Orders))

	s := api.Group("/support", authn)
	s.POST("", createTicket(d.Support))
	s.GET("/customer/:customer_id", customerTickets(d.Support))
	s.GET("", reviewer, listTickets(d.Support))
	s.GET("/:id", getTicket(d.Support))
	s.PATCH("/:id", reviewer, updateTicket(d.Support))
	s.PATCH("/:id/status", reviewer, setTicketStatus(d.Support))
	s.DELETE("/:id", admin, deleteTicket(d.Support))
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"code": 0, "data": data})
}

func fail(c *gin.Context, err error) { middleware.Fail(c, err) }

// bind 解析 JSON 请求体，失败时直接写 400。
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return false
	}
	return true
}

// principal 只在 Authenticate 之后调用。
func principal(c *gin.Context) auth.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}
