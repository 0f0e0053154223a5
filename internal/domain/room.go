package domain

import "time"

// Property is the catalog listing a guest books into. The catalog owns it; the booking
// pipeline only reads it.
type Property struct {
	ID          string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	City        string    `json:"city,omitempty" gorm:"type:varchar(128)"`
	OwnerUserID string    `json:"owner_user_id" gorm:"type:varchar(64);not null;index"`
	OwnerName   string    `json:"owner_name" gorm:"type:varchar(255)"`
	OwnerPhone  string    `json:"owner_phone" gorm:"type:varchar(32)"`
	OwnerEmail  string    `json:"owner_email" gorm:"type:varchar(255)"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Rooms []Room `json:"rooms,omitempty" gorm:"foreignKey:PropertyID"`
}

func (Property) TableName() string { return "properties" }

type Room struct {
	ID            string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	PropertyID    string    `json:"property_id" gorm:"type:varchar(64);not null;index"`
	Name          string    `json:"name" gorm:"type:varchar(255)"`
	SharingType   string    `json:"sharing_type" gorm:"type:varchar(32)"`
	TotalBeds     int       `json:"total_beds" gorm:"not null;check:chk_rooms_total_beds,total_beds >= 0"`
	AvailableBeds int       `json:"available_beds" gorm:"not null;check:chk_rooms_available_beds,available_beds >= 0 AND available_beds <= total_beds"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Room) TableName() string { return "rooms" }
