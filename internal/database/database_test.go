package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/database/dbtest"
	"github.com/example/sitesnap/internal/models"
)

func TestIsUniqueViolationOnDuplicateCategory(t *testing.T) {
	db := dbtest.Open(t)
	owner := models.Seller{Name: "A", PhoneNumber: "1", WhatsappNumber: "1", Address: "x"}
	require.NoError(t, db.Create(&owner).Error)

	require.NoError(t, db.Create(&models.Category{CategoryName: "Shoes", SellerID: owner.ID}).Error)
	err := db.Create(&models.Category{CategoryName: "Shoes", SellerID: owner.ID}).Error

	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.False(t, database.IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, database.IsUniqueViolation(nil))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := dbtest.Open(t)
	runner := database.GormTx{DB: db}
	boom := errors.New("boom")

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&models.Seller{Name: "A", PhoneNumber: "1", WhatsappNumber: "1", Address: "x"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Seller{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIsNotFound(t *testing.T) {
	db := dbtest.Open(t)
	err := db.First(&models.Seller{}).Error
	assert.True(t, database.IsNotFound(err))
}
