package catalog

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubCategoryInput struct {
	Name  string `json:"name" validate:"required"`
	Label string `json:"label"`
}

type CategoryInput struct {
	Name          string             `json:"name" validate:"required,max=128"`
	SubCategories []SubCategoryInput `json:"sub_categories" validate:"min=1,dive"`
}

// CreateCategory 名称唯一（忽略大小写），至少一个子分类。
func (s *Service) CreateCategory(ctx context.Context, actor auth.Principal, in CategoryInput) (*model.Category, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid category")
	}

	var existing model.Category
	err := s.db.WithContext(ctx).Where("LOWER(name) = ?", strings.ToLower(in.Name)).Take(&existing).Error
	if err == nil {
		return nil, apperr.New(apperr.KindConflict, "category already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := &model.Category{Name: in.Name}
	for _, sc := range in.SubCategories {
		c.SubCategories = append(c.SubCategories, model.SubCategory{Name: strings.TrimSpace(sc.Name), Label: sc.Label})
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, apperr.New(apperr.KindConflict, "category already exists")
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	var list []model.Category
	return list, s.db.WithContext(ctx).Order("name").Find(&list).Error
}

// CategoryPatch 只更新非 nil 字段；SubCategories 给出时整体替换，且不能为空。
type CategoryPatch struct {
	Name          *string             `json:"name" validate:"omitempty,max=128"`
	SubCategories *[]SubCategoryInput `json:"sub_categories" validate:"omitempty,min=1,dive"`
}

func (s *Service) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "category not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, actor auth.Principal, id string, patch CategoryPatch) (*model.Category, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if patch.SubCategories != nil && len(*patch.SubCategories) == 0 {
		return nil, apperr.New(apperr.KindValidation, "at least one sub category is required")
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid category")
	}
	if patch.Name == nil && patch.SubCategories == nil {
		return nil, apperr.New(apperr.KindValidation, "nothing to update")
	}

	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.New(apperr.KindValidation, "name must not be empty")
		}
		var n int64
		err := s.db.WithContext(ctx).Model(&model.Category{}).
			Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), id).Count(&n).Error
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.New(apperr.KindConflict, "category already exists")
		}
		c.Name = name
	}
	if patch.SubCategories != nil {
		subs := make([]model.SubCategory, 0, len(*patch.SubCategories))
		for _, sc := range *patch.SubCategories {
			subs = append(subs, model.SubCategory{ID: uuid.NewString(), Name: strings.TrimSpace(sc.Name), Label: sc.Label})
		}
		c.SubCategories = subs
	}

	err = s.db.WithContext(ctx).Model(c).Select("name", "sub_categories").Updates(c).Error
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, apperr.New(apperr.KindConflict, "category already exists")
		}
		return nil, err
	}
	return c, nil
}

// DeleteCategory 仍有商品引用的分类不能删除。
func (s *Service) DeleteCategory(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireReviewer(); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Product{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Newf(apperr.KindConflict, "category is used by %d products", n)
		}
		res := tx.Where("id = ?", id).Delete(&model.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindNotFound, "category not found")
		}
		return nil
	})
}
