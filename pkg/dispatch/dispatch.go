package dispatch

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"companioncare/pkg/geo"
	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/sorting"
)

var candidatesSurfaced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatch_candidates_surfaced_total",
	Help: "Service requests surfaced to companions as candidates",
})

// DismissalStore remembers which requests a companion has dismissed in the
// current session. Dismissals are session-scoped, not part of the request.
type DismissalStore interface {
	Dismiss(ctx context.Context, companionID, requestID string) error
	Dismissed(ctx context.Context, companionID string) (map[string]bool, error)
}

// Dispatcher builds the candidate list a companion sees.
type Dispatcher struct {
	radiusKm   float64
	dismissals DismissalStore
	log        logger.ILogger
}

func New(radiusKm float64, dismissals DismissalStore, log logger.ILogger) *Dispatcher {
	return &Dispatcher{radiusKm: radiusKm, dismissals: dismissals, log: log}
}

// CandidatesFor returns every pending request within the radius of the
// companion's home, plus every request already assigned to the companion
// regardless of distance, minus session dismissals (pending subset only),
// ordered for display. An accepted job is never hidden once taken.
func (d *Dispatcher) CandidatesFor(ctx context.Context, companion *models.Party, pending, owned []*models.ServiceRequest) ([]*models.ServiceRequest, error) {
	dismissed, err := d.dismissals.Dismissed(ctx, companion.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load dismissals: %w", err)
	}

	seen := make(map[string]bool, len(owned))
	candidates := make([]*models.ServiceRequest, 0, len(pending)+len(owned))

	for _, req := range owned {
		seen[req.ID] = true
		candidates = append(candidates, req)
	}

	for _, req := range pending {
		if seen[req.ID] || dismissed[req.ID] {
			continue
		}
		if geo.DistanceKm(companion.Home, req.Origin) > d.radiusKm {
			continue
		}
		candidates = append(candidates, req)
	}

	sorting.Services(candidates)
	candidatesSurfaced.Add(float64(len(candidates)))
	return candidates, nil
}

// Dismiss hides a pending request from this companion for the session.
func (d *Dispatcher) Dismiss(ctx context.Context, companionID, requestID string) error {
	if err := d.dismissals.Dismiss(ctx, companionID, requestID); err != nil {
		return fmt.Errorf("dispatch: dismiss request: %w", err)
	}
	d.log.Info("request dismissed for session",
		logger.String("companion_id", companionID),
		logger.String("request_id", requestID),
	)
	return nil
}
