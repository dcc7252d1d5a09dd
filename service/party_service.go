package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/storage"
)

type RegisterPartyParams struct {
	Role         models.Role
	Name         string
	ChatID       int64
	Home         models.LatLng
	LocationText string
}

type AddReviewParams struct {
	ServiceID  string
	ReviewerID string
	Rating     int
	Comment    string
}

// Profile is a party together with its derived reputation.
type Profile struct {
	Party         *models.Party `json:"party"`
	AverageRating float64       `json:"average_rating"`
	ReviewCount   int           `json:"review_count"`
}

type PartyService interface {
	Register(ctx context.Context, params RegisterPartyParams) (*models.Party, error)
	GetByID(ctx context.Context, id string) (*models.Party, error)
	Profile(ctx context.Context, id string) (*Profile, error)
	UpdateHome(ctx context.Context, id string, home models.LatLng, locationText string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	AddReview(ctx context.Context, params AddReviewParams) (*models.Review, error)
	ReviewsFor(ctx context.Context, partyID string) ([]*models.Review, error)
}

type partyService struct {
	stg storage.IStorage
	log logger.ILogger
	now func() time.Time
}

func NewPartyService(stg storage.IStorage, log logger.ILogger) PartyService {
	return &partyService{stg: stg, log: log, now: time.Now}
}

func (p *partyService) Register(ctx context.Context, params RegisterPartyParams) (*models.Party, error) {
	if params.Role != models.RoleRequester && params.Role != models.RoleCompanion {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, params.Role)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	party := &models.Party{
		ID:           uuid.NewString(),
		Role:         params.Role,
		Name:         params.Name,
		ChatID:       params.ChatID,
		Home:         params.Home,
		LocationText: params.LocationText,
	}

	created, err := p.stg.Party().Create(ctx, party)
	if err != nil {
		return nil, fmt.Errorf("service: register party: %w", err)
	}

	p.log.Info("party registered",
		logger.String("party_id", created.ID),
		logger.String("role", string(created.Role)))
	return created, nil
}

func (p *partyService) GetByID(ctx context.Context, id string) (*models.Party, error) {
	return p.stg.Party().GetByID(ctx, id)
}

func (p *partyService) Profile(ctx context.Context, id string) (*Profile, error) {
	party, err := p.stg.Party().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: profile: %w", err)
	}
	reviews, err := p.stg.Review().GetForParty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: profile: reviews: %w", err)
	}
	avg, err := p.stg.Review().AverageRating(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: profile: rating: %w", err)
	}
	return &Profile{Party: party, AverageRating: avg, ReviewCount: len(reviews)}, nil
}

func (p *partyService) UpdateHome(ctx context.Context, id string, home models.LatLng, locationText string) error {
	if err := p.stg.Party().UpdateHome(ctx, id, home, locationText); err != nil {
		return fmt.Errorf("service: update home: %w", err)
	}
	return nil
}

func (p *partyService) SetVerified(ctx context.Context, id string, verified bool) error {
	if err := p.stg.Party().SetVerified(ctx, id, verified); err != nil {
		return fmt.Errorf("service: set verified: %w", err)
	}
	return nil
}

// AddReview records a rating from one side of a confirmed service about the
// other, once per service.
func (p *partyService) AddReview(ctx context.Context, params AddReviewParams) (*models.Review, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	req, err := p.stg.Service().GetByID(ctx, params.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service: add review: %w", err)
	}
	if !req.Confirmed {
		return nil, fmt.Errorf("%w: service %s is not confirmed", ErrValidation, params.ServiceID)
	}
	if req.Reviewed {
		return nil, fmt.Errorf("%w: service %s already reviewed", ErrValidation, params.ServiceID)
	}

	var reviewedID string
	switch params.ReviewerID {
	case req.RequesterID:
		reviewedID = req.CompanionID
	case req.CompanionID:
		reviewedID = req.RequesterID
	default:
		return nil, fmt.Errorf("%w: party %s is not part of service %s", ErrValidation, params.ReviewerID, params.ServiceID)
	}

	review := &models.Review{
		ID:         uuid.NewString(),
		ServiceID:  params.ServiceID,
		ReviewerID: params.ReviewerID,
		ReviewedID: reviewedID,
		Rating:     params.Rating,
		Comment:    params.Comment,
	}

	created, err := p.stg.Review().Create(ctx, review)
	if err != nil {
		return nil, fmt.Errorf("service: add review: %w", err)
	}
	if err := p.stg.Service().SetReviewed(ctx, params.ServiceID); err != nil {
		p.log.Error("failed to mark service reviewed", logger.String("service_id", params.ServiceID), logger.Error(err))
	}

	p.log.Info("review added",
		logger.String("review_id", created.ID),
		logger.String("service_id", params.ServiceID),
		logger.Int("rating", params.Rating))
	return created, nil
}

func (p *partyService) ReviewsFor(ctx context.Context, partyID string) ([]*models.Review, error) {
	reviews, err := p.stg.Review().GetForParty(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("service: reviews: %w", err)
	}
	return reviews, nil
}
