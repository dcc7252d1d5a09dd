package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"companioncare/pkg/geo"
	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/notify"
)

var proximityAlertsFired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tracking_proximity_alerts_fired_total",
	Help: "One-shot proximity alerts delivered",
})

// LocationSource yields the counterparty's most recent live position. The
// second return is false while no position has been reported yet.
type LocationSource interface {
	Current(ctx context.Context) (models.LatLng, bool, error)
}

// AwaitUntil evaluates predicate immediately and then on every interval tick
// until it holds or ctx is cancelled. Returns true when the predicate held.
func AwaitUntil(ctx context.Context, interval time.Duration, predicate func() bool) bool {
	if predicate() {
		return true
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if predicate() {
				return true
			}
		}
	}
}

// Monitor watches a single open service request: it unlocks the check-in and
// check-out actions when their time gates pass, and raises a one-shot alert
// when the counterparty comes within the proximity threshold. Monitors share
// no state with each other.
type Monitor struct {
	interval    time.Duration
	thresholdKm float64
	notifier    notify.Notifier
	log         logger.ILogger

	mu      sync.Mutex
	alerted bool
}

func NewMonitor(interval time.Duration, thresholdKm float64, notifier notify.Notifier, log logger.ILogger) *Monitor {
	return &Monitor{
		interval:    interval,
		thresholdKm: thresholdKm,
		notifier:    notifier,
		log:         log,
	}
}

// AwaitGate blocks until now >= at, polling on the monitor interval, then
// calls onUnlock once. It returns without calling onUnlock if ctx is
// cancelled first. Used for both the check-in gate (at = scheduledStart) and
// the check-out gate (at = checkInTime + duration - tolerance).
func (m *Monitor) AwaitGate(ctx context.Context, at time.Time, onUnlock func()) {
	if AwaitUntil(ctx, m.interval, func() bool { return !time.Now().Before(at) }) {
		onUnlock()
	}
}

// WatchProximity polls the source and fires exactly one alert the first time
// the counterparty is within the threshold of the destination. The watch then
// stops; it does not re-arm when the parties separate unless
// ResetProximityAlert is called and the watch restarted.
func (m *Monitor) WatchProximity(ctx context.Context, destination models.LatLng, source LocationSource, chatID int64, title, body string) {
	fired := AwaitUntil(ctx, m.interval, func() bool {
		pos, ok, err := source.Current(ctx)
		if err != nil {
			m.log.Warning("failed to read live location", logger.Error(err))
			return false
		}
		return ok && geo.IsClose(pos, destination, m.thresholdKm)
	})
	if !fired {
		return
	}

	m.mu.Lock()
	already := m.alerted
	m.alerted = true
	m.mu.Unlock()
	if already {
		return
	}

	proximityAlertsFired.Inc()
	if err := m.notifier.SendNow(ctx, chatID, title, body); err != nil {
		m.log.Error("failed to deliver proximity alert", logger.Error(err))
	}
}

// ResetProximityAlert re-arms the one-shot alert. Parties that separate and
// re-approach only trigger again after an explicit reset.
func (m *Monitor) ResetProximityAlert() {
	m.mu.Lock()
	m.alerted = false
	m.mu.Unlock()
}
