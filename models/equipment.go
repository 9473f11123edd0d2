package models

import "time"

const EquipmentTable = "portal_equipment"

// Equipment 器材记录。TotalQuantity 是实际拥有的总件数，借用申请不会扣减它；
// Available 只是展示用的标记，不参与容量计算。
type Equipment struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"size:200;not null;index" json:"name"`
	Category      string    `gorm:"size:100;not null;index" json:"category"`
	Condition     string    `gorm:"size:100;not null" json:"condition"`
	TotalQuantity int       `gorm:"not null;default:0;check:chk_equipment_total_quantity,total_quantity >= 0" json:"quantity"`
	Available     bool      `gorm:"not null" json:"availability"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Equipment) TableName() string { return EquipmentTable }
