package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
)

// Repository looks up business profiles. Profiles are owned by the accounts
// subsystem and are read-only here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error)
	BusinessNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a profile repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	var profile models.BusinessProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// BusinessNames resolves display names for the given users. Unknown users are
// absent from the result.
func (r *repository) BusinessNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var profiles []models.BusinessProfile
	if err := r.db.WithContext(ctx).
		Select("user_id", "business_name").
		Where("user_id IN ?", userIDs).
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		names[p.UserID] = p.BusinessName
	}
	return names, nil
}
