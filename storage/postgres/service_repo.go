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

type serviceRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewServiceRepo(db *pgxpool.Pool, log logger.ILogger) storage.IServiceStorage {
	return &serviceRepo{db: db, log: log}
}

const serviceColumns = `
	id, requester_id, companion_id, status, category, additional_info,
	scheduled_start, duration, origin_lat, origin_lng, origin_text,
	price, companion_payout, platform_commission,
	check_in_time, check_out_time, confirmed, reviewed,
	requester_live_lat, requester_live_lng, requester_live_at,
	companion_live_lat, companion_live_lng, companion_live_at,
	created_at
`

func (r *serviceRepo) Create(ctx context.Context, req *models.ServiceRequest) (*models.ServiceRequest, error) {
	query := `
		INSERT INTO service_requests (
			id, requester_id, companion_id, status, category, additional_info,
			scheduled_start, duration, origin_lat, origin_lng, origin_text,
			price, companion_payout, platform_commission
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.RequesterID,
		req.CompanionID,
		req.Status,
		req.Category,
		req.AdditionalInfo,
		req.ScheduledStart,
		req.Duration,
		req.Origin.Latitude,
		req.Origin.Longitude,
		req.OriginText,
		req.Price,
		req.CompanionPayout,
		req.PlatformCommission,
	).Scan(&req.CreatedAt)

	if err != nil {
		r.log.Error("failed to create service request", logger.Error(err))
		return nil, err
	}

	return req, nil
}

func (r *serviceRepo) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM service_requests WHERE id = $1`, id)

	req, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		r.log.Error("failed to get service request by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}
	return req, nil
}

func (r *serviceRepo) GetPending(ctx context.Context) ([]*models.ServiceRequest, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM service_requests
		WHERE status = 'pending'
		ORDER BY scheduled_start DESC
	`
	return r.scanServices(ctx, query)
}

func (r *serviceRepo) GetByCompanion(ctx context.Context, companionID string) ([]*models.ServiceRequest, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM service_requests
		WHERE companion_id = $1
		ORDER BY scheduled_start DESC
	`
	return r.scanServices(ctx, query, companionID)
}

func (r *serviceRepo) GetByRequester(ctx context.Context, requesterID string) ([]*models.ServiceRequest, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM service_requests
		WHERE requester_id = $1
		ORDER BY scheduled_start DESC
	`
	return r.scanServices(ctx, query, requesterID)
}

func (r *serviceRepo) GetConfirmedByCompanion(ctx context.Context, companionID string, from, to time.Time) ([]*models.ServiceRequest, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM service_requests
		WHERE companion_id = $1 AND confirmed = TRUE AND scheduled_start BETWEEN $2 AND $3
		ORDER BY scheduled_start DESC
	`
	return r.scanServices(ctx, query, companionID, from, to)
}

// Accept is the only place a companion gets assigned: the WHERE clause makes
// the assignment atomic, so the second of two racing companions fails.
func (r *serviceRepo) Accept(ctx context.Context, id, companionID string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE service_requests
		SET status = 'accepted', companion_id = $1
		WHERE id = $2 AND status = 'pending' AND companion_id = ''
	`, companionID, id)
	if err != nil {
		r.log.Error("failed to accept service request", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *serviceRepo) Cancel(ctx context.Context, id string) error {
	return r.conditionalStatus(ctx, id, "cancelled", "pending")
}

func (r *serviceRepo) SetInProgress(ctx context.Context, id string, checkIn time.Time) error {
	res, err := r.db.Exec(ctx, `
		UPDATE service_requests
		SET status = 'in_progress', check_in_time = $1
		WHERE id = $2 AND status = 'accepted'
	`, checkIn, id)
	if err != nil {
		r.log.Error("failed to set service in progress", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *serviceRepo) SetCompleted(ctx context.Context, id string, checkOut time.Time) error {
	res, err := r.db.Exec(ctx, `
		UPDATE service_requests
		SET status = 'completed', check_out_time = $1
		WHERE id = $2 AND status = 'in_progress'
	`, checkOut, id)
	if err != nil {
		r.log.Error("failed to complete service", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *serviceRepo) SetConfirmed(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE service_requests
		SET confirmed = TRUE
		WHERE id = $1 AND status = 'completed' AND confirmed = FALSE
	`, id)
	if err != nil {
		r.log.Error("failed to confirm service", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *serviceRepo) SetConflicts(ctx context.Context, id string) error {
	return r.conditionalStatus(ctx, id, "conflicts", "completed")
}

func (r *serviceRepo) SetReviewed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE service_requests SET reviewed = TRUE WHERE id = $1`, id)
	if err != nil {
		r.log.Error("failed to mark service reviewed", logger.String("id", id), logger.Error(err))
	}
	return err
}

func (r *serviceRepo) UpdateLiveLocation(ctx context.Context, id string, role models.Role, loc models.LiveLocation) error {
	query := `
		UPDATE service_requests
		SET requester_live_lat = $1, requester_live_lng = $2, requester_live_at = $3
		WHERE id = $4
	`
	if role == models.RoleCompanion {
		query = `
			UPDATE service_requests
			SET companion_live_lat = $1, companion_live_lng = $2, companion_live_at = $3
			WHERE id = $4
		`
	}
	_, err := r.db.Exec(ctx, query, loc.Latitude, loc.Longitude, loc.UpdatedAt, id)
	if err != nil {
		r.log.Error("failed to update live location", logger.String("id", id), logger.Error(err))
	}
	return err
}

func (r *serviceRepo) conditionalStatus(ctx context.Context, id, to, from string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE service_requests SET status = $1 WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		r.log.Error("failed to update service status", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return storage.ErrAlreadyTaken
	}
	return nil
}

func (r *serviceRepo) scanServices(ctx context.Context, query string, args ...interface{}) ([]*models.ServiceRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.ServiceRequest
	for rows.Next() {
		req, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanService(row pgx.Row) (*models.ServiceRequest, error) {
	var (
		req              models.ServiceRequest
		reqLat, reqLng   *float64
		reqAt            *time.Time
		compLat, compLng *float64
		compAt           *time.Time
	)
	err := row.Scan(
		&req.ID, &req.RequesterID, &req.CompanionID, &req.Status, &req.Category, &req.AdditionalInfo,
		&req.ScheduledStart, &req.Duration, &req.Origin.Latitude, &req.Origin.Longitude, &req.OriginText,
		&req.Price, &req.CompanionPayout, &req.PlatformCommission,
		&req.CheckInTime, &req.CheckOutTime, &req.Confirmed, &req.Reviewed,
		&reqLat, &reqLng, &reqAt,
		&compLat, &compLng, &compAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reqLat != nil && reqLng != nil && reqAt != nil {
		req.RequesterLive = &models.LiveLocation{
			LatLng:    models.LatLng{Latitude: *reqLat, Longitude: *reqLng},
			UpdatedAt: *reqAt,
		}
	}
	if compLat != nil && compLng != nil && compAt != nil {
		req.CompanionLive = &models.LiveLocation{
			LatLng:    models.LatLng{Latitude: *compLat, Longitude: *compLng},
			UpdatedAt: *compAt,
		}
	}
	return &req, nil
}
