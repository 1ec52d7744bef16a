package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	runner := NewTxRunner(db, time.Second)

	boom := errors.New("boom")
	err = runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&model.Product{Name: "Mug", Price: decimal.NewFromInt(10), Stock: 3}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTxCommits(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	runner := NewTxRunner(db, time.Second)

	err = runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&model.Product{Name: "Mug", Price: decimal.NewFromInt(10), Stock: 3}).Error
	})
	require.NoError(t, err)

	var p model.Product
	require.NoError(t, db.First(&p).Error)
	assert.Equal(t, int64(3), p.Stock)
	assert.NotEmpty(t, p.ID)
}

func TestOpenMemoryIsolated(t *testing.T) {
	a, err := OpenMemory()
	require.NoError(t, err)
	b, err := OpenMemory()
	require.NoError(t, err)

	require.NoError(t, a.Create(&model.Product{Name: "only-in-a", Price: decimal.Zero}).Error)

	var count int64
	require.NoError(t, b.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}
