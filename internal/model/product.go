package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品：名称、价格、库存、所属分类
type Product struct {
	ID        string         `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string          `gorm:"size:128;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	CategoryID  string          `gorm:"type:varchar(36);index" json:"category_id"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	// Stock 只能通过 inventory.Ledger 的原子增减修改，永远不为负。
	Stock    int64 `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	IsActive bool  `gorm:"not null;default:true" json:"is_active"`
	// BestSeller 同时最多 catalog.MaxBestSellers 个
	BestSeller bool `gorm:"not null;default:false;index" json:"best_seller"`
	// Hidden 为 true 时不出现在前台列表里，但仍可按 ID 访问和下单
	Hidden bool `gorm:"not null;default:false" json:"hidden"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Category 商品分类，至少包含一个子分类。
type Category struct {
	ID        string    `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string        `gorm:"size:128;uniqueIndex;not null" json:"name"`
	SubCategories []SubCategory `gorm:"serializer:json;type:text" json:"sub_categories"`
}

type SubCategory struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

func (Category) TableName() string { return "categories" }

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for i := range c.SubCategories {
		if c.SubCategories[i].ID == "" {
			c.SubCategories[i].ID = uuid.NewString()
		}
	}
	return nil
}
