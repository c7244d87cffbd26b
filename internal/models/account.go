package models

import "time"

// PortalAccount stores a user's portal login with the password sealed
type PortalAccount struct {
	UserID       string    `json:"user_id"`
	LoginID      string    `json:"login_id"`
	SealedSecret []byte    `json:"-"`
	SalonID      string    `json:"salon_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
