package models

import "time"

// DefaultBedCapacity is used when a slot is created without a capacity
const DefaultBedCapacity = 10

// Slot represents the slots table
// A named shift window (e.g. "Morning 06:00-10:00") with a fixed number of beds
type Slot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	StartTime   string    `gorm:"size:5;not null" json:"start_time"` // HH:MM
	EndTime     string    `gorm:"size:5;not null" json:"end_time"`   // HH:MM
	BedCapacity int       `gorm:"not null;default:10" json:"bed_capacity"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Slot model
func (Slot) TableName() string {
	return "slots"
}

// Capacity returns the bed capacity, falling back to the default
func (s Slot) Capacity() int {
	if s.BedCapacity <= 0 {
		return DefaultBedCapacity
	}
	return s.BedCapacity
}
