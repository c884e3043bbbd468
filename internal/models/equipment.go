package models

import "time"

// PatientEquipment represents the patient_equipment table
// Reuse counters for the consumables a patient's treatments share
type PatientEquipment struct {
	PatientID          uint      `gorm:"primaryKey;autoIncrement:false" json:"patient_id"`
	DialyserCount      int       `gorm:"not null;default:0" json:"dialyser_count"`
	TubingCount        int       `gorm:"not null;default:0" json:"tubing_count"`
	DialysersPurchased int       `gorm:"not null;default:0" json:"dialysers_purchased"`
	TubingPurchased    int       `gorm:"not null;default:0" json:"tubing_purchased"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for PatientEquipment model
func (PatientEquipment) TableName() string {
	return "patient_equipment"
}

// EquipmentAlert represents the equipment_alerts table
// Raised when a reuse counter enters the warning, critical or expired band
type EquipmentAlert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PatientID uint      `gorm:"not null;index" json:"patient_id"`
	SessionID uint      `gorm:"index" json:"session_id"`
	Item      string    `gorm:"size:20;not null" json:"item"`   // dialyser, tubing
	Status    string    `gorm:"size:20;not null" json:"status"` // warning, critical, expired
	Count     int       `json:"count"`
	Max       int       `json:"max"`
	Message   string    `gorm:"size:255" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for EquipmentAlert model
func (EquipmentAlert) TableName() string {
	return "equipment_alerts"
}
