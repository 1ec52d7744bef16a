package router

import (
	"strconv"

	"storefront/internal/catalog"

	"github.com/gin-gonic/gin"
)

func listCategories(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListCategories(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func createCategory(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.CategoryInput
		if !bind(c, &req) {
			return
		}
		cat, err := svc.CreateCategory(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, cat)
	}
}

// listProducts 查询在售商品，支持 category_id / q / page / limit。
func listProducts(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		res, err := svc.ListProducts(c.Request.Context(), catalog.ProductFilter{
			CategoryID: c.Query("category_id"),
			Query:      c.Query("q"),
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

func getProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func createProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.ProductInput
		if !bind(c, &req) {
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), principal(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, p)
	}
}

func updateProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.ProductPatch
		if !bind(c, &req) {
			return
		}
		p, err := svc.UpdateProduct(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func restockProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Quantity int `json:"quantity" binding:"required,min=1"`
		}
		if !bind(c, &req) {
			return
		}
		p, err := svc.Restock(c.Request.Context(), principal(c), c.Param("id"), req.Quantity)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func deleteProduct(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteProduct(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"deleted": true})
	}
}

func getCategory(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cat, err := svc.GetCategory(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, cat)
	}
}

func updateCategory(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.CategoryPatch
		if !bind(c, &req) {
			return
		}
		cat, err := svc.UpdateCategory(c.Request.Context(), principal(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, cat)
	}
}

func deleteCategory(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteCategory(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"deleted": true})
	}
}

// activeProducts 前台全部可见商品，不分页。
func activeProducts(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListActiveProducts(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func bestSellers(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListBestSellers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func toggleBestSeller(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.ToggleBestSeller(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func toggleHidden(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.ToggleHidden(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}
