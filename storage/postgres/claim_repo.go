package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/storage"
)

type claimRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewClaimRepo(db *pgxpool.Pool, log logger.ILogger) storage.IClaimStorage {
	return &claimRepo{db: db, log: log}
}

const claimColumns = `
	id, service_id, requester_id, companion_id, reason, description,
	status, response, created_at, deleted_date
`

func (r *claimRepo) Create(ctx context.Context, claim *models.Claim) (*models.Claim, error) {
	query := `
		INSERT INTO claims (id, service_id, requester_id, companion_id, reason, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		claim.ID,
		claim.ServiceID,
		claim.RequesterID,
		claim.CompanionID,
		claim.Reason,
		claim.Description,
		claim.Status,
	).Scan(&claim.CreatedAt)

	if err != nil {
		r.log.Error("failed to create claim", logger.Error(err))
		return nil, err
	}

	return claim, nil
}

func (r *claimRepo) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)

	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		r.log.Error("failed to get claim by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return claim, nil
}

func (r *claimRepo) GetByRequester(ctx context.Context, requesterID string, includeDeleted bool) ([]*models.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE requester_id = $1 AND status != 'deleted'
		ORDER BY created_at DESC
	`
	if includeDeleted {
		query = `
			SELECT ` + claimColumns + `
			FROM claims
			WHERE requester_id = $1
			ORDER BY created_at DESC
		`
	}
	return r.scanClaims(ctx, query, requesterID)
}

func (r *claimRepo) GetByService(ctx context.Context, serviceID string) ([]*models.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE service_id = $1 AND status != 'deleted'
		ORDER BY created_at DESC
	`
	return r.scanClaims(ctx, query, serviceID)
}

func (r *claimRepo) Resolve(ctx context.Context, id string, status models.ClaimStatus, response *string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE claims SET status = $1, response = $2 WHERE id = $3 AND status = 'open'
	`, status, response, id)
	if err != nil {
		r.log.Error("failed to resolve claim", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *claimRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	res, err := r.db.Exec(ctx, `
		UPDATE claims SET status = 'deleted', deleted_date = $1 WHERE id = $2 AND status = 'open'
	`, deletedAt, id)
	if err != nil {
		r.log.Error("failed to delete claim", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *claimRepo) scanClaims(ctx context.Context, query string, args ...interface{}) ([]*models.Claim, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func scanClaim(row pgx.Row) (*models.Claim, error) {
	var claim models.Claim
	err := row.Scan(
		&claim.ID, &claim.ServiceID, &claim.RequesterID, &claim.CompanionID,
		&claim.Reason, &claim.Description, &claim.Status, &claim.Response,
		&claim.CreatedAt, &claim.DeletedDate,
	)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}
