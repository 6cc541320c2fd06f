package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers are told when a watched unit becomes bookable again.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Units []*Unit `gorm:"many2many:subscription_unit_mapping;"`
}
