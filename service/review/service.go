package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/service/booking"
)

var ErrAlreadyReviewed = errors.New("this booking has already been reviewed")

type Store interface {
	// CreateReview returns ErrAlreadyReviewed when the booking has a review.
	CreateReview(ctx context.Context, r *models.Review) error
	ListForTrainer(ctx context.Context, trainerID uint, page, pageSize int) ([]models.Review, int64, error)
}

type BookingReader interface {
	Get(ctx context.Context, id string, actor booking.Actor) (*models.Booking, error)
}

type RatingUpdater interface {
	RecomputeRating(ctx context.Context, trainerID uint) error
}

type SubmitRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type Service struct {
	bookings BookingReader
	store    Store
	ratings  RatingUpdater
	validate *validator.Validate
}

func NewService(bookings BookingReader, store Store, ratings RatingUpdater) *Service {
	return &Service{
		bookings: bookings,
		store:    store,
		ratings:  ratings,
		validate: utils.NewValidator(),
	}
}

// Submit records the client's review of a completed booking and then
// refreshes the trainer's rating aggregate.
func (s *Service) Submit(ctx context.Context, actor booking.Actor, bookingID string, req SubmitRequest) (*models.Review, error) {
	if err := s.validate.Struct(req); err != nil {
		field, message := utils.TranslateValidationError(err)
		return nil, &booking.ValidationError{Field: field, Message: message}
	}
	if actor.Party != booking.PartyClient {
		return nil, &booking.PermissionError{Message: "Only clients can review sessions"}
	}

	b, err := s.bookings.Get(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusCompleted {
		return nil, &booking.ValidationError{Field: "booking", Message: "Can only review completed sessions"}
	}

	r := &models.Review{
		BookingID:  b.ID,
		TrainerID:  b.TrainerID,
		ClientID:   actor.ID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		IsVerified: true,
		IsVisible:  true,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return nil, err
	}
	log.Info().Str("booking_id", b.ID).Uint("trainer_id", b.TrainerID).Int("rating", r.Rating).Msg("review submitted")

	if err := s.ratings.RecomputeRating(context.WithoutCancel(ctx), b.TrainerID); err != nil {
		log.Error().Err(err).Uint("trainer_id", b.TrainerID).Msg("failed to recompute trainer rating")
	}
	return r, nil
}

func (s *Service) ListForTrainer(ctx context.Context, trainerID uint, page, pageSize int) ([]models.Review, int64, error) {
	return s.store.ListForTrainer(ctx, trainerID, page, pageSize)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateReview(ctx context.Context, r *models.Review) error {
	err := s.db.WithContext(ctx).Create(r).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyReviewed
	}
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// ListForTrainer returns visible reviews, newest first.
func (s *GormStore) ListForTrainer(ctx context.Context, trainerID uint, page, pageSize int) ([]models.Review, int64, error) {
	if page < 1 {
		page = 1
	}
	visible := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Review{}).
			Where("trainer_id = ? AND is_visible = ?", trainerID, true)
	}

	var total int64
	if err := visible().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	var reviews []models.Review
	err := visible().Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&reviews).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}
