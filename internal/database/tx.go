package database

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner runs fn inside a transaction and commits when it returns nil.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GormTx is the TxRunner backed by a gorm connection.
type GormTx struct {
	DB *gorm.DB
}

func (g GormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.DB.WithContext(ctx).Transaction(fn)
}
