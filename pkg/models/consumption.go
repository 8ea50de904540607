package models

import "time"

// Consumption represents a single day's water consumption
type Consumption struct {
	ID        int       `json:"id"`
	Date      time.Time `json:"date"`   // Calendar date, midnight UTC
	Liters    int       `json:"liters"` // Volume reported by the portal, passed through verbatim
	Published bool      `json:"published"`
}

// Key returns the ISO-8601 date used to key consumption results
func (c Consumption) Key() string {
	return c.Date.Format(time.DateOnly)
}
