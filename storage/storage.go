package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"companioncare/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyTaken is returned when a conditional update loses a race,
	// e.g. two companions accepting the same pending request.
	ErrAlreadyTaken = errors.New("storage: request already taken or no longer in expected status")
)

type IStorage interface {
	Service() IServiceStorage
	Claim() IClaimStorage
	Party() IPartyStorage
	Review() IReviewStorage
	Close()
	GetPool() *pgxpool.Pool
}

type IServiceStorage interface {
	Create(ctx context.Context, req *models.ServiceRequest) (*models.ServiceRequest, error)
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	GetPending(ctx context.Context) ([]*models.ServiceRequest, error)
	GetByCompanion(ctx context.Context, companionID string) ([]*models.ServiceRequest, error)
	GetByRequester(ctx context.Context, requesterID string) ([]*models.ServiceRequest, error)
	GetConfirmedByCompanion(ctx context.Context, companionID string, from, to time.Time) ([]*models.ServiceRequest, error)

	// Accept assigns the companion only while the request is still pending and
	// unassigned; the losing racer gets ErrAlreadyTaken.
	Accept(ctx context.Context, id, companionID string) error
	Cancel(ctx context.Context, id string) error
	SetInProgress(ctx context.Context, id string, checkIn time.Time) error
	SetCompleted(ctx context.Context, id string, checkOut time.Time) error
	SetConfirmed(ctx context.Context, id string) error
	SetConflicts(ctx context.Context, id string) error
	SetReviewed(ctx context.Context, id string) error
	UpdateLiveLocation(ctx context.Context, id string, role models.Role, loc models.LiveLocation) error
}

type IClaimStorage interface {
	Create(ctx context.Context, claim *models.Claim) (*models.Claim, error)
	GetByID(ctx context.Context, id string) (*models.Claim, error)
	GetByRequester(ctx context.Context, requesterID string, includeDeleted bool) ([]*models.Claim, error)
	GetByService(ctx context.Context, serviceID string) ([]*models.Claim, error)
	Resolve(ctx context.Context, id string, status models.ClaimStatus, response *string) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type IPartyStorage interface {
	Create(ctx context.Context, party *models.Party) (*models.Party, error)
	GetByID(ctx context.Context, id string) (*models.Party, error)
	UpdateHome(ctx context.Context, id string, home models.LatLng, locationText string) error
	IncrementCompletedServices(ctx context.Context, id string) error
	SetVerified(ctx context.Context, id string, verified bool) error
}

type IReviewStorage interface {
	Create(ctx context.Context, review *models.Review) (*models.Review, error)
	GetForParty(ctx context.Context, partyID string) ([]*models.Review, error)
	AverageRating(ctx context.Context, partyID string) (float64, error)
}
