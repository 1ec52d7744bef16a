package router

import (
	"storefront/internal/auth"

	"github.com/gin-gonic/gin"
)

func signup(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.SignupInput
		if !bind(c, &req) {
			return
		}
		sess, err := svc.Signup(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, sess)
	}
}

func login(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		sess, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sess)
	}
}

func forgotPassword(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		if err := svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"sent": true})
	}
}

func resetPassword(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Token    string `json:"token" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		if err := svc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"reset": true})
	}
}

func changePassword(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Current string `json:"current_password" binding:"required"`
			New     string `json:"new_password" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		if err := svc.ChangePassword(c.Request.Context(), principal(c), req.Current, req.New); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"changed": true})
	}
}

func me(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Get(c.Request.Context(), principal(c).ID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, u)
	}
}

func listUsers(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), principal(c), c.Query("role"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func createUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.CreateUserInput
		if !bind(c, &req) {
			return
		}
		u, err := svc.CreateUser(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, u)
	}
}

func setUserActive(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Active *bool `json:"active" binding:"required"`
		}
		if !bind(c, &req) {
			return
		}
		u, err := svc.SetActive(c.Request.Context(), principal(c), c.Param("id"), *req.Active)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, u)
	}
}

func getUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, u)
	}
}

func updateUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.UserPatch
		if !bind(c, &req) {
			return
		}
		u, err := svc.UpdateUser(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, u)
	}
}

func deleteUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteUser(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"deleted": true})
	}
}
