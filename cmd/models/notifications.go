package models

import (
	"time"

	"gorm.io/gorm"
)

type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"userId"`
	DeviceType string `gorm:"type:varchar(50)" json:"deviceType"`
	DeviceName string `gorm:"type:varchar(100)" json:"deviceName,omitempty"`
}

const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelLive  = "websocket"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type NotificationHistory struct {
	gorm.Model
	UserID    uint      `gorm:"index" json:"userId"`
	BookingID string    `gorm:"type:varchar(36);index" json:"bookingId"`
	Channel   string    `gorm:"type:varchar(20)" json:"channel"`
	Title     string    `json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Status    string    `gorm:"type:varchar(20)" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}
