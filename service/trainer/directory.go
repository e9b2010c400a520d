package trainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

// Directory is the read side of trainer profiles plus the rating aggregate
// it keeps on them.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Trainer(ctx context.Context, id uint) (*models.TrainerProfile, error) {
	var profile models.TrainerProfile
	err := d.db.WithContext(ctx).Preload("User").First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load trainer %d: %w", id, err)
	}
	return &profile, nil
}

func (d *Directory) ByUserID(ctx context.Context, userID uint) (*models.TrainerProfile, error) {
	var profile models.TrainerProfile
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load trainer for user %d: %w", userID, err)
	}
	return &profile, nil
}

// List returns published trainers, best rated first.
func (d *Directory) List(ctx context.Context, page, pageSize int) ([]models.TrainerProfile, int64, error) {
	if page < 1 {
		page = 1
	}
	published := func() *gorm.DB {
		return d.db.WithContext(ctx).Model(&models.TrainerProfile{}).Where("published = ?", true)
	}

	var total int64
	if err := published().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count trainers: %w", err)
	}

	var profiles []models.TrainerProfile
	err := published().Preload("User").
		Order("average_rating DESC, id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&profiles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list trainers: %w", err)
	}
	return profiles, total, nil
}

// RecomputeRating refreshes average_rating and total_reviews from the
// trainer's visible reviews.
func (d *Directory) RecomputeRating(ctx context.Context, trainerID uint) error {
	var ratings []int
	err := d.db.WithContext(ctx).Model(&models.Review{}).
		Where("trainer_id = ? AND is_visible = ?", trainerID, true).
		Pluck("rating", &ratings).Error
	if err != nil {
		return fmt.Errorf("load ratings for trainer %d: %w", trainerID, err)
	}

	average, count := summarize(ratings)
	err = d.db.WithContext(ctx).Model(&models.TrainerProfile{}).
		Where("id = ?", trainerID).
		Updates(map[string]interface{}{
			"average_rating": average,
			"total_reviews":  count,
		}).Error
	if err != nil {
		return fmt.Errorf("update rating for trainer %d: %w", trainerID, err)
	}

	log.Info().Uint("trainer_id", trainerID).Str("average_rating", average.StringFixed(2)).Int("total_reviews", count).
		Msg("trainer rating updated")
	return nil
}

func summarize(ratings []int) (decimal.Decimal, int) {
	if len(ratings) == 0 {
		return decimal.Zero, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	average := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(ratings)))).RoundBank(2)
	return average, len(ratings)
}
