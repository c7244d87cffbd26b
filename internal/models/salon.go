package models

// Stylist is a stylist listed on a salon's public page
type Stylist struct {
	StylistID string `json:"stylist_id"`
	Name      string `json:"name"`
}
