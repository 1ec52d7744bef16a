// Package store 负责打开 SQLite、建表，以及带超时的事务执行。
package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models 是需要 AutoMigrate 的全部表。
var Models = []any{
	&model.User{},
	&model.Category{},
	&model.Product{},
	&model.Order{},
	&model.PaymentIntent{},
	&model.SupportTicket{},
}

// Open 连接 SQLite 文件并自动建表。
// WAL + busy_timeout 让读写可以并发；_txlock=immediate 让写事务一开始就拿写锁，避免升级死锁。
func Open(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=1", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

// OpenMemory 打开一个独立的内存库，测试与压测工具使用。
// 单连接保证所有事务串行，行为与生产的 immediate 写锁一致。
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

// TxRunner 在超时上下文里执行事务，超时或 fn 返回错误都会整体回滚。
type TxRunner struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewTxRunner(db *gorm.DB, timeout time.Duration) *TxRunner {
	return &TxRunner{db: db, timeout: timeout}
}

func (r *TxRunner) DB() *gorm.DB { return r.db }

// WithTx fn 内只能使用传入的 tx，不能再碰 r.db。
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.db.WithContext(ctx).Transaction(fn)
}
