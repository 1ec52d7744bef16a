package router

import (
	"net/http"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func createOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateInput
		if !bind(c, &req) {
			return
		}
		res, err := svc.CreateForCustomer(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, res)
	}
}

// checkout 客户下单，返回订单与网关支付意图。
func checkout(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateInput
		if !bind(c, &req) {
			return
		}
		req.CustomerID = ""
		res, err := svc.Checkout(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, res)
	}
}

func listFilter(c *gin.Context) (order.ListFilter, bool) {
	var f order.ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid query"))
		return f, false
	}
	return f, true
}

func listOrders(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, good := listFilter(c)
		if !good {
			return
		}
		page, err := svc.List(c.Request.Context(), principal(c), f)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, page)
	}
}

func orderSummary(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Summary(c.Request.Context(), principal(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sum)
	}
}

func myOrders(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		list, err := svc.ListByCustomer(c.Request.Context(), p, p.ID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func customerOrders(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListByCustomer(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func customerSummary(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.CustomerSummary(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sum)
	}
}

func listReturns(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, good := listFilter(c)
		if !good {
			return
		}
		page, err := svc.ListReturns(c.Request.Context(), principal(c), f)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, page)
	}
}

func myReturns(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.MyReturns(c.Request.Context(), principal(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func getOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func changeStatus(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status model.OrderStatus `json:"status" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		o, err := svc.ChangeStatus(c.Request.Context(), principal(c), c.Param("id"), req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func updateShippingAddress(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ShippingAddress
		if !bind(c, &req) {
			return
		}
		o, err := svc.UpdateShippingAddress(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func deleteOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"deleted": true})
	}
}

// submitReturn 支持 JSON（images 必须是 LocalStore 返回过的路径）或 multipart（images 为文件）。
// 服务层拒绝时删除本次已落盘的文件。
func submitReturn(svc *order.Service, uploads *storage.LocalStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.SubmitReturnInput
		var saved []string
		cleanup := func() {
			for _, p := range saved {
				if err := uploads.Remove(p); err != nil {
					log.Warn("remove upload", zap.String("path", p), zap.Error(err))
				}
			}
		}

		if strings.HasPrefix(c.ContentType(), "multipart/") {
			form, err := c.MultipartForm()
			if err != nil {
				fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid multipart form"))
				return
			}
			in.Reason = c.PostForm("reason")
			in.ReasonCategory = model.ReasonCategory(c.PostForm("reason_category"))
			files := form.File["images"]
			if len(files) > order.MaxReturnImages {
				fail(c, apperr.Newf(apperr.KindValidation, "at most %d images allowed", order.MaxReturnImages))
				return
			}
			if len(files) > 0 && uploads == nil {
				fail(c, apperr.New(apperr.KindValidation, "file uploads are disabled"))
				return
			}
			for _, fh := range files {
				f, err := fh.Open()
				if err != nil {
					cleanup()
					fail(c, apperr.Wrap(apperr.KindValidation, err, "unreadable image"))
					return
				}
				p, err := uploads.Save(fh.Filename, f)
				_ = f.Close()
				if err != nil {
					cleanup()
					fail(c, apperr.Wrap(apperr.KindValidation, err, "image rejected"))
					return
				}
				saved = append(saved, p)
			}
			in.Images = saved
		} else {
			if !bind(c, &in) {
				return
			}
			for _, p := range in.Images {
				if uploads == nil || !uploads.Exists(p) {
					fail(c, apperr.Newf(apperr.KindValidation, "unknown image path %q", p))
					return
				}
			}
		}

		o, err := svc.SubmitReturn(c.Request.Context(), principal(c), c.Param("id"), in)
		if err != nil {
			cleanup()
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": o})
	}
}

func approveReturn(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.ApproveReturnInput
		if c.Request.ContentLength != 0 && !bind(c, &req) {
			return
		}
		o, err := svc.ApproveReturn(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func rejectReturn(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Comment string `json:"admin_comment"`
		}
		if c.Request.ContentLength != 0 && !bind(c, &req) {
			return
		}
		o, err := svc.RejectReturn(c.Request.Context(), principal(c), c.Param("id"), req.Comment)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func completeReturn(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.CompleteReturn(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func cancelReturn(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.CancelReturn(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

func createIntent(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.IntentInput
		if !bind(c, &req) {
			return
		}
		in, err := svc.CreateIntent(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, in)
	}
}

// verifyPayment 网关回调校验，字段名与 Razorpay checkout 返回一致。
func verifyPayment(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.VerifyInput
		if !bind(c, &req) {
			return
		}
		o, err := svc.VerifyPayment(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		// order 为 null 表示先付款后下单，尚无本地订单
		ok(c, gin.H{"verified": true, "order": o})
	}
}

func orphanedIntents(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.OrphanedIntents(c.Request.Context(), principal(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}
