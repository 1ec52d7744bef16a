package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/inventory"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = auth.Principal{ID: "admin-1", Role: model.RoleAdmin}
	staff    = auth.Principal{ID: "staff-1", Role: model.RoleStaff}
	customer = auth.Principal{ID: "cust-1", Role: model.RoleCustomer}
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	return NewService(store.NewTxRunner(db, 5*time.Second), inventory.NewLedger(), nil)
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func TestCreateAndGetProduct(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, customer, ProductInput{Name: "Kettle", Price: price("10")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.CreateProduct(ctx, staff, ProductInput{Name: "Kettle", Price: price("-1")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.CreateProduct(ctx, staff, ProductInput{Name: "Kettle", Price: price("1"), CategoryID: "nope"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	p, err := svc.CreateProduct(ctx, staff, ProductInput{Name: " Kettle ", Price: price("24.999"), Stock: 5})
	require.NoError(t, err)
	assert.Equal(t, "Kettle", p.Name)
	assert.True(t, p.IsActive)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price("25")), got.Price.String())
	assert.Equal(t, int64(5), got.Stock)

	_, err = svc.GetProduct(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateInactiveProduct(t *testing.T) {
	svc := newService(t)
	p, err := svc.CreateProduct(context.Background(), admin, ProductInput{Name: "Draft", Price: price("3"), IsActive: ptr(false)})
	require.NoError(t, err)
	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestListProducts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	cat, err := svc.CreateCategory(ctx, admin, CategoryInput{Name: "Kitchen", SubCategories: []SubCategoryInput{{Name: "Cookware"}}})
	require.NoError(t, err)

	for _, n := range []string{"Steel Kettle", "Glass Kettle", "Mug"} {
		_, err := svc.CreateProduct(ctx, admin, ProductInput{Name: n, Price: price("1"), CategoryID: cat.ID})
		require.NoError(t, err)
	}
	_, err = svc.CreateProduct(ctx, admin, ProductInput{Name: "Hidden Kettle", Price: price("1"), IsActive: ptr(false)})
	require.NoError(t, err)

	page, err := svc.ListProducts(ctx, ProductFilter{Query: "kettle"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = svc.ListProducts(ctx, ProductFilter{Query: "kettle", IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)

	page, err = svc.ListProducts(ctx, ProductFilter{CategoryID: cat.ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
}

func TestUpdateProduct(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, admin, ProductInput{Name: "Kettle", Price: price("10"), Stock: 3})
	require.NoError(t, err)

	got, err := svc.UpdateProduct(ctx, staff, p.ID, ProductPatch{Price: ptr(price("12.50")), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price("12.5")))
	assert.False(t, got.IsActive)
	assert.Equal(t, "Kettle", got.Name)
	assert.Equal(t, int64(3), got.Stock)

	_, err = svc.UpdateProduct(ctx, staff, p.ID, ProductPatch{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.UpdateProduct(ctx, staff, p.ID, ProductPatch{Name: ptr("  ")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.UpdateProduct(ctx, staff, "missing", ProductPatch{Name: ptr("x")})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.UpdateProduct(ctx, customer, p.ID, ProductPatch{Name: ptr("x")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestRestockAndDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, admin, ProductInput{Name: "Kettle", Price: price("10"), Stock: 1})
	require.NoError(t, err)

	got, err := svc.Restock(ctx, staff, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Stock)

	_, err = svc.Restock(ctx, staff, p.ID, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(svc.DeleteProduct(ctx, staff, p.ID)))
	require.NoError(t, svc.DeleteProduct(ctx, admin, p.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.DeleteProduct(ctx, admin, p.ID)))

	_, err = svc.Restock(ctx, staff, p.ID, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCategories(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, admin, CategoryInput{Name: "Kitchen"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	c, err := svc.CreateCategory(ctx, admin, CategoryInput{Name: "Kitchen", SubCategories: []SubCategoryInput{{Name: "Cookware", Label: "Pots"}}})
	require.NoError(t, err)
	require.Len(t, c.SubCategories, 1)
	assert.NotEmpty(t, c.SubCategories[0].ID)

	_, err = svc.CreateCategory(ctx, staff, CategoryInput{Name: "kitchen", SubCategories: []SubCategoryInput{{Name: "x"}}})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.CreateCategory(ctx, admin, CategoryInput{Name: "Garden", SubCategories: []SubCategoryInput{{Name: "Tools"}}})
	require.NoError(t, err)
	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Garden", list[0].Name)
	assert.Equal(t, "Pots", list[1].SubCategories[0].Label)
}

func TestBestSellerCap(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i <= MaxBestSellers; i++ {
		p, err := svc.CreateProduct(ctx, admin, ProductInput{Name: fmt.Sprintf("Item %d", i), Price: price("1")})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	_, err := svc.ToggleBestSeller(ctx, customer, ids[0])
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = svc.ToggleBestSeller(ctx, staff, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	for _, id := range ids[:MaxBestSellers] {
		p, err := svc.ToggleBestSeller(ctx, staff, id)
		require.NoError(t, err)
		assert.True(t, p.BestSeller)
	}
	_, err = svc.ToggleBestSeller(ctx, staff, ids[MaxBestSellers])
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// 取消一个后名额空出
	p, err := svc.ToggleBestSeller(ctx, staff, ids[0])
	require.NoError(t, err)
	assert.False(t, p.BestSeller)
	_, err = svc.ToggleBestSeller(ctx, staff, ids[MaxBestSellers])
	require.NoError(t, err)

	list, err := svc.ListBestSellers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, MaxBestSellers)
}

func TestBestSellerCapUnderConcurrency(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	const n = MaxBestSellers + 5
	ids := make([]string, n)
	for i := range ids {
		p, err := svc.CreateProduct(ctx, admin, ProductInput{Name: fmt.Sprintf("Item %d", i), Price: price("1")})
		require.NoError(t, err)
		ids[i] = p.ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		marked   int
		rejected int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.ToggleBestSeller(ctx, admin, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				marked++
			} else if apperr.KindOf(err) == apperr.KindConflict {
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, MaxBestSellers, marked)
	assert.Equal(t, n-MaxBestSellers, rejected)
	var count int64
	require.NoError(t, svc.db.Model(&model.Product{}).Where("best_seller = ?", true).Count(&count).Error)
	assert.Equal(t, int64(MaxBestSellers), count)
}

func TestHiddenProductsLeaveStorefront(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	shown, err := svc.CreateProduct(ctx, admin, ProductInput{Name: "Kettle", Price: price("10")})
	require.NoError(t, err)
	hidden, err := svc.CreateProduct(ctx, admin, ProductInput{Name: "Prototype", Price: price("10")})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, admin, ProductInput{Name: "Retired", Price: price("10"), IsActive: ptr(false)})
	require.NoError(t, err)

	_, err = svc.ToggleBestSeller(ctx, admin, hidden.ID)
	require.NoError(t, err)
	p, err := svc.ToggleHidden(ctx, staff, hidden.ID)
	require.NoError(t, err)
	assert.True(t, p.Hidden)
	_, err = svc.ToggleHidden(ctx, customer, hidden.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	active, err := svc.ListActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, shown.ID, active[0].ID)

	best, err := svc.ListBestSellers(ctx)
	require.NoError(t, err)
	assert.Empty(t, best)

	page, err := svc.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// 隐藏商品仍可按 ID 读取
	got, err := svc.GetProduct(ctx, hidden.ID)
	require.NoError(t, err)
	assert.True(t, got.Hidden)

	p, err = svc.ToggleHidden(ctx, staff, hidden.ID)
	require.NoError(t, err)
	assert.False(t, p.Hidden)
	best, err = svc.ListBestSellers(ctx)
	require.NoError(t, err)
	assert.Len(t, best, 1)
}

func TestUpdateAndDeleteCategory(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	kitchen, err := svc.CreateCategory(ctx, admin, CategoryInput{Name: "Kitchen", SubCategories: []SubCategoryInput{{Name: "Cookware"}}})
	require.NoError(t, err)
	garden, err := svc.CreateCategory(ctx, admin, CategoryInput{Name: "Garden", SubCategories: []SubCategoryInput{{Name: "Tools"}}})
	require.NoError(t, err)

	got, err := svc.GetCategory(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Name)
	_, err = svc.GetCategory(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.UpdateCategory(ctx, customer, kitchen.ID, CategoryPatch{Name: ptr("Home")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = svc.UpdateCategory(ctx, staff, kitchen.ID, CategoryPatch{Name: ptr("GARDEN")})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = svc.UpdateCategory(ctx, staff, kitchen.ID, CategoryPatch{SubCategories: &[]SubCategoryInput{}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.UpdateCategory(ctx, staff, kitchen.ID, CategoryPatch{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.UpdateCategory(ctx, staff, "missing", CategoryPatch{Name: ptr("Home")})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 大小写变化不算重名
	c, err := svc.UpdateCategory(ctx, staff, kitchen.ID, CategoryPatch{
		Name:          ptr("KITCHEN"),
		SubCategories: &[]SubCategoryInput{{Name: "Cutlery"}, {Name: "Bakeware", Label: "Ovenware"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "KITCHEN", c.Name)
	got, err = svc.GetCategory(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, "KITCHEN", got.Name)
	require.Len(t, got.SubCategories, 2)
	assert.Equal(t, "Ovenware", got.SubCategories[1].Label)
	assert.NotEmpty(t, got.SubCategories[0].ID)

	_, err = svc.CreateProduct(ctx, admin, ProductInput{Name: "Rake", Price: price("5"), CategoryID: garden.ID})
	require.NoError(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(svc.DeleteCategory(ctx, admin, garden.ID)))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(svc.DeleteCategory(ctx, customer, kitchen.ID)))

	require.NoError(t, svc.DeleteCategory(ctx, staff, kitchen.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.DeleteCategory(ctx, staff, kitchen.ID)))
	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Garden", list[0].Name)
}
