package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BusinessProfile is the public identity of a distributor or supplier account.
type BusinessProfile struct {
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	BusinessName string    `gorm:"column:business_name;not null"`
	ContactName  *string   `gorm:"column:contact_name"`
	Email        string    `gorm:"column:email;not null"`
	Phone        *string   `gorm:"column:phone"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BusinessProfile) TableName() string { return "business_profiles" }

// DisplayContact prefers the named contact over the business name.
func (p BusinessProfile) DisplayContact() string {
	if p.ContactName != nil {
		if name := strings.TrimSpace(*p.ContactName); name != "" {
			return name
		}
	}
	return strings.TrimSpace(p.BusinessName)
}
