package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/storage"
)

type partyRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewPartyRepo(db *pgxpool.Pool, log logger.ILogger) storage.IPartyStorage {
	return &partyRepo{db: db, log: log}
}

func (r *partyRepo) Create(ctx context.Context, party *models.Party) (*models.Party, error) {
	query := `
		INSERT INTO parties (id, role, name, chat_id, home_lat, home_lng, location_text, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING completed_services, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		party.ID,
		party.Role,
		party.Name,
		party.ChatID,
		party.Home.Latitude,
		party.Home.Longitude,
		party.LocationText,
		party.Verified,
	).Scan(&party.CompletedServices, &party.CreatedAt, &party.UpdatedAt)

	if err != nil {
		r.log.Error("failed to create party", logger.Error(err))
		return nil, err
	}

	return party, nil
}

func (r *partyRepo) GetByID(ctx context.Context, id string) (*models.Party, error) {
	var party models.Party
	query := `
		SELECT id, role, name, chat_id, home_lat, home_lng, location_text,
		       completed_services, verified, created_at, updated_at
		FROM parties
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&party.ID, &party.Role, &party.Name, &party.ChatID,
		&party.Home.Latitude, &party.Home.Longitude, &party.LocationText,
		&party.CompletedServices, &party.Verified, &party.CreatedAt, &party.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		r.log.Error("failed to get party by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return &party, nil
}

func (r *partyRepo) UpdateHome(ctx context.Context, id string, home models.LatLng, locationText string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE parties
		SET home_lat = $1, home_lng = $2, location_text = $3, updated_at = NOW()
		WHERE id = $4
	`, home.Latitude, home.Longitude, locationText, id)
	if err != nil {
		r.log.Error("failed to update party home", logger.String("id", id), logger.Error(err))
	}
	return err
}

func (r *partyRepo) IncrementCompletedServices(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE parties
		SET completed_services = completed_services + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		r.log.Error("failed to increment completed services", logger.String("id", id), logger.Error(err))
	}
	return err
}

func (r *partyRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE parties SET verified = $1, updated_at = NOW() WHERE id = $2
	`, verified, id)
	if err != nil {
		r.log.Error("failed to set party verified", logger.String("id", id), logger.Error(err))
	}
	return err
}
