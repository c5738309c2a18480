package billing

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/repository"
)

// Repository provides the store operations used by the billing service.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx repository.AccessStateTx) error) error
	PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return repository.NewAccessStateRepository(db)
}
