package router

import (
	"storefront/internal/model"
	"storefront/internal/support"

	"github.com/gin-gonic/gin"
)

func createTicket(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req support.CreateInput
		if !bind(c, &req) {
			return
		}
		t, err := svc.Create(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, t)
	}
}

func customerTickets(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListByCustomer(c.Request.Context(), principal(c), c.Param("customer_id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func listTickets(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), principal(c), c.Query("status"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func getTicket(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Get(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, t)
	}
}

func updateTicket(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req support.UpdateInput
		if !bind(c, &req) {
			return
		}
		t, err := svc.Update(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, t)
	}
}

func setTicketStatus(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status model.TicketStatus `json:"status" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		t, err := svc.SetStatus(c.Request.Context(), principal(c), c.Param("id"), req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, t)
	}
}

func deleteTicket(svc *support.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"deleted": true})
	}
}
