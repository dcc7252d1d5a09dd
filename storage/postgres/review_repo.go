package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/storage"
)

type reviewRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewReviewRepo(db *pgxpool.Pool, log logger.ILogger) storage.IReviewStorage {
	return &reviewRepo{db: db, log: log}
}

func (r *reviewRepo) Create(ctx context.Context, review *models.Review) (*models.Review, error) {
	query := `
		INSERT INTO reviews (id, service_id, reviewer_id, reviewed_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		review.ID,
		review.ServiceID,
		review.ReviewerID,
		review.ReviewedID,
		review.Rating,
		review.Comment,
	).Scan(&review.CreatedAt)

	if err != nil {
		r.log.Error("failed to create review", logger.Error(err))
		return nil, err
	}

	return review, nil
}

func (r *reviewRepo) GetForParty(ctx context.Context, partyID string) ([]*models.Review, error) {
	query := `
		SELECT id, service_id, reviewer_id, reviewed_id, rating, comment, created_at
		FROM reviews
		WHERE reviewed_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var review models.Review
		err := rows.Scan(
			&review.ID, &review.ServiceID, &review.ReviewerID, &review.ReviewedID,
			&review.Rating, &review.Comment, &review.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, &review)
	}
	return reviews, rows.Err()
}

// AverageRating is the party's reputation. Parties with no reviews score 0.
func (r *reviewRepo) AverageRating(ctx context.Context, partyID string) (float64, error) {
	var avg float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE reviewed_id = $1
	`, partyID).Scan(&avg)
	if err != nil {
		r.log.Error("failed to compute average rating", logger.String("party_id", partyID), logger.Error(err))
		return 0, err
	}
	return avg, nil
}
