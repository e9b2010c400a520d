package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleClient  = "client"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

type User struct {
	gorm.Model
	FirstName string `gorm:"column:first_name;size:150" json:"first_name"`
	LastName  string `gorm:"column:last_name;size:150" json:"last_name"`
	Email     string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	Role      string `gorm:"column:role;size:50;not null" json:"role"`
	Phone     string `gorm:"column:phone;size:20" json:"phone"`
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type TrainerProfile struct {
	gorm.Model
	UserID             uint            `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Bio                string          `gorm:"column:bio;type:text" json:"bio"`
	YearsExperience    int             `gorm:"column:years_experience;default:0" json:"years_experience"`
	Address            string          `gorm:"column:address;size:255" json:"address"`
	ServiceRadiusMiles int             `gorm:"column:service_radius_miles;default:10" json:"service_radius_miles"`
	HourlyRate         decimal.Decimal `gorm:"column:hourly_rate;type:numeric(6,2);not null" json:"hourly_rate"`
	Verified           bool            `gorm:"column:verified;default:false" json:"verified"`
	Published          bool            `gorm:"column:published;default:false;index" json:"published"`

	// Maintained by the review service after every review write.
	AverageRating decimal.Decimal `gorm:"column:average_rating;type:numeric(3,2);default:0" json:"average_rating"`
	TotalReviews  int             `gorm:"column:total_reviews;default:0" json:"total_reviews"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (TrainerProfile) TableName() string {
	return "trainer_profiles"
}
