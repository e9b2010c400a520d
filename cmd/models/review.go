package models

import (
	"gorm.io/gorm"
)

type Review struct {
	gorm.Model
	BookingID  string `gorm:"column:booking_id;type:varchar(36);not null;uniqueIndex:one_review_per_booking" json:"booking_id"`
	TrainerID  uint   `gorm:"column:trainer_id;not null;index" json:"trainer_id"`
	ClientID   uint   `gorm:"column:client_id;not null;index" json:"client_id"`
	Rating     int    `gorm:"column:rating;not null" json:"rating"`
	Comment    string `gorm:"column:comment;type:text" json:"comment"`
	IsVerified bool   `gorm:"column:is_verified;default:true" json:"is_verified"`
	IsVisible  bool   `gorm:"column:is_visible;default:true" json:"is_visible"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`
}

func (Review) TableName() string {
	return "reviews"
}
