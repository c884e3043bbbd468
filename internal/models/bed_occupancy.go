package models

import (
	"fmt"
	"time"
)

// BedOccupancy represents the bed_occupancies table
// Read model of which bed is claimed by which session; feeds the scheduling grid
type BedOccupancy struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SlotID    uint      `gorm:"not null;index:idx_occupancy_slot_date" json:"slot_id"`
	BedNumber int       `gorm:"not null" json:"bed_number"`
	Date      time.Time `gorm:"column:session_date;type:date;not null;index:idx_occupancy_slot_date" json:"session_date"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	// ClaimKey is "slot:bed:date" while active and NULL once released, so the
	// unique index allows one live claim per bed and any number of released ones
	ClaimKey   *string    `gorm:"size:64;uniqueIndex" json:"-"`
	ClaimedAt  time.Time  `json:"claimed_at"`
	ReleasedAt *time.Time `json:"released_at"`
}

// TableName specifies the table name for BedOccupancy model
func (BedOccupancy) TableName() string {
	return "bed_occupancies"
}

// BedClaimKey builds the unique key of a live claim
func BedClaimKey(slotID uint, bed int, date time.Time) string {
	return fmt.Sprintf("%d:%d:%s", slotID, bed, date.Format("2006-01-02"))
}
