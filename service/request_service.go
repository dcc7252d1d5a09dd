package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"companioncare/config"
	"companioncare/pkg/dispatch"
	"companioncare/pkg/geocode"
	"companioncare/pkg/lifecycle"
	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/notify"
	"companioncare/pkg/pricing"
	"companioncare/pkg/reminder"
	"companioncare/pkg/sorting"
	"companioncare/pkg/tracking"
	"companioncare/storage"
)

var (
	transitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companioncare_transitions_applied_total",
		Help: "Lifecycle transitions applied, by action.",
	}, []string{"action"})
	transitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companioncare_transitions_rejected_total",
		Help: "Lifecycle transitions rejected, by action.",
	}, []string{"action"})
)

type CreateRequestParams struct {
	RequesterID    string
	Category       models.Category
	AdditionalInfo string
	ScheduledStart time.Time
	Duration       int
	Origin         models.LatLng
	OriginText     string
}

type RequestService interface {
	Create(ctx context.Context, params CreateRequestParams) (*models.ServiceRequest, error)
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	ListForRequester(ctx context.Context, requesterID string) ([]*models.ServiceRequest, error)
	ListForCompanion(ctx context.Context, companionID string) ([]*models.ServiceRequest, error)
	CandidatesFor(ctx context.Context, companionID string) ([]*models.ServiceRequest, error)
	Dismiss(ctx context.Context, companionID, requestID string) error

	Accept(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, requestID, requesterID string) error
	CheckIn(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error)
	CheckOut(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error)
	Confirm(ctx context.Context, requestID, requesterID string) error

	Quote(durationHours int) pricing.Breakdown
	PaymentsFor(ctx context.Context, companionID string, from, to time.Time) (int, []*models.ServiceRequest, error)

	UpdateLiveLocation(ctx context.Context, requestID, partyID string, loc models.LatLng) error
	StartTracking(requestID, viewerID string) error
	StopTracking(requestID, viewerID string)
}

type requestService struct {
	cfg        config.Config
	stg        storage.IStorage
	machine    *lifecycle.Machine
	dispatcher *dispatch.Dispatcher
	reminders  *reminder.Scheduler
	notifier   notify.Notifier
	geocoder   geocode.Geocoder
	monitors   *tracking.Manager
	log        logger.ILogger
	now        func() time.Time
}

func NewRequestService(
	cfg config.Config,
	stg storage.IStorage,
	machine *lifecycle.Machine,
	dispatcher *dispatch.Dispatcher,
	reminders *reminder.Scheduler,
	notifier notify.Notifier,
	geocoder geocode.Geocoder,
	monitors *tracking.Manager,
	log logger.ILogger,
) RequestService {
	return &requestService{
		cfg:        cfg,
		stg:        stg,
		machine:    machine,
		dispatcher: dispatcher,
		reminders:  reminders,
		notifier:   notifier,
		geocoder:   geocoder,
		monitors:   monitors,
		log:        log,
		now:        time.Now,
	}
}

func (s *requestService) Create(ctx context.Context, params CreateRequestParams) (*models.ServiceRequest, error) {
	if params.Duration < s.cfg.MinHours || params.Duration > s.cfg.MaxHours {
		return nil, fmt.Errorf("%w: duration must be between %d and %d hours", ErrValidation, s.cfg.MinHours, s.cfg.MaxHours)
	}
	if params.ScheduledStart.Before(s.now()) {
		return nil, fmt.Errorf("%w: scheduled start is in the past", ErrValidation)
	}
	switch params.Category {
	case models.CategoryCompany, models.CategoryTramit, models.CategoryMedicApp, models.CategoryOther:
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, params.Category)
	}

	requester, err := s.stg.Party().GetByID(ctx, params.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("service: create: load requester: %w", err)
	}
	if requester.Role != models.RoleRequester {
		return nil, fmt.Errorf("%w: party %s is not a requester", ErrValidation, requester.ID)
	}

	originText := params.OriginText
	if originText == "" {
		originText, err = s.geocoder.Reverse(ctx, params.Origin)
		if err != nil {
			s.log.Warning("reverse geocoding failed, using fallback address", logger.Error(err))
			originText = geocode.FallbackAddress
		}
	}

	quote := pricing.Quote(params.Duration, s.cfg.HourlyBase, s.cfg.CommissionRate)

	req := &models.ServiceRequest{
		ID:                 uuid.NewString(),
		RequesterID:        params.RequesterID,
		Status:             models.StatusPending,
		Category:           params.Category,
		AdditionalInfo:     params.AdditionalInfo,
		ScheduledStart:     params.ScheduledStart,
		Duration:           params.Duration,
		Origin:             params.Origin,
		OriginText:         originText,
		Price:              quote.Price,
		CompanionPayout:    quote.CompanionPayout,
		PlatformCommission: quote.PlatformCommission,
		CreatedAt:          s.now(),
	}

	created, err := s.stg.Service().Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("service: create request: %w", err)
	}

	if requester.ChatID != 0 {
		if err := s.reminders.ScheduleStartReminder(ctx, created, requester.ChatID, s.now()); err != nil {
			s.log.Warning("failed to schedule requester reminder", logger.String("request_id", created.ID), logger.Error(err))
		}
	}

	s.log.Info("service request created",
		logger.String("request_id", created.ID),
		logger.String("requester_id", created.RequesterID),
		logger.Int("price", created.Price))
	return created, nil
}

func (s *requestService) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return s.stg.Service().GetByID(ctx, id)
}

func (s *requestService) ListForRequester(ctx context.Context, requesterID string) ([]*models.ServiceRequest, error) {
	reqs, err := s.stg.Service().GetByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("service: list for requester: %w", err)
	}
	sorting.Services(reqs)
	return reqs, nil
}

func (s *requestService) ListForCompanion(ctx context.Context, companionID string) ([]*models.ServiceRequest, error) {
	reqs, err := s.stg.Service().GetByCompanion(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("service: list for companion: %w", err)
	}
	sorting.Services(reqs)
	return reqs, nil
}

func (s *requestService) CandidatesFor(ctx context.Context, companionID string) ([]*models.ServiceRequest, error) {
	companion, err := s.stg.Party().GetByID(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("service: candidates: load companion: %w", err)
	}
	if companion.Role != models.RoleCompanion {
		return nil, fmt.Errorf("%w: party %s is not a companion", ErrValidation, companionID)
	}

	var pending, owned []*models.ServiceRequest
	err = backoff.Retry(func() error {
		var rerr error
		if pending, rerr = s.stg.Service().GetPending(ctx); rerr != nil {
			return rerr
		}
		owned, rerr = s.stg.Service().GetByCompanion(ctx, companionID)
		return rerr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
	if err != nil {
		return nil, fmt.Errorf("service: candidates: %w", err)
	}

	return s.dispatcher.CandidatesFor(ctx, companion, pending, owned)
}

func (s *requestService) Dismiss(ctx context.Context, companionID, requestID string) error {
	return s.dispatcher.Dismiss(ctx, companionID, requestID)
}

func (s *requestService) Accept(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error) {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service: accept: %w", err)
	}
	companion, err := s.stg.Party().GetByID(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("service: accept: load companion: %w", err)
	}

	actor := lifecycle.Actor{ID: companion.ID, Role: companion.Role, Home: companion.Home}
	next, err := s.machine.Transition(req, lifecycle.ActionAccept, actor, s.now())
	if err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionAccept)).Inc()
		return nil, err
	}

	if err := s.stg.Service().Accept(ctx, requestID, companionID); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionAccept)).Inc()
		return nil, fmt.Errorf("service: accept: %w", err)
	}
	transitionsApplied.WithLabelValues(string(lifecycle.ActionAccept)).Inc()

	s.openChatChannel(ctx, next, companion)

	if companion.ChatID != 0 {
		if err := s.reminders.ScheduleStartReminder(ctx, next, companion.ChatID, s.now()); err != nil {
			s.log.Warning("failed to schedule companion reminder", logger.String("request_id", requestID), logger.Error(err))
		}
	}

	s.log.Info("service request accepted",
		logger.String("request_id", requestID),
		logger.String("companion_id", companionID))
	return next, nil
}

// openChatChannel tells both parties the assignment happened and where to talk.
// The channel id is the request id; delivery failures are logged, not returned,
// since the assignment is already persisted.
func (s *requestService) openChatChannel(ctx context.Context, req *models.ServiceRequest, companion *models.Party) {
	requester, err := s.stg.Party().GetByID(ctx, req.RequesterID)
	if err != nil {
		s.log.Error("failed to load requester for chat notification", logger.String("request_id", req.ID), logger.Error(err))
		return
	}

	body := fmt.Sprintf("Chat channel %s is now open.", req.ID)
	if requester.ChatID != 0 {
		if err := s.notifier.SendNow(ctx, requester.ChatID, "Companion assigned", companion.Name+" accepted your request. "+body); err != nil {
			s.log.Warning("requester chat notification failed", logger.String("request_id", req.ID), logger.Error(err))
		}
	}
	if companion.ChatID != 0 {
		if err := s.notifier.SendNow(ctx, companion.ChatID, "Request assigned to you", body); err != nil {
			s.log.Warning("companion chat notification failed", logger.String("request_id", req.ID), logger.Error(err))
		}
	}
}

func (s *requestService) Cancel(ctx context.Context, requestID, requesterID string) error {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service: cancel: %w", err)
	}

	actor := lifecycle.Actor{ID: requesterID, Role: models.RoleRequester}
	if _, err := s.machine.Transition(req, lifecycle.ActionCancel, actor, s.now()); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCancel)).Inc()
		return err
	}

	if err := s.stg.Service().Cancel(ctx, requestID); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCancel)).Inc()
		return fmt.Errorf("service: cancel: %w", err)
	}
	transitionsApplied.WithLabelValues(string(lifecycle.ActionCancel)).Inc()

	s.log.Info("service request cancelled", logger.String("request_id", requestID))
	return nil
}

func (s *requestService) CheckIn(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error) {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service: check in: %w", err)
	}

	actor := lifecycle.Actor{ID: companionID, Role: models.RoleCompanion}
	next, err := s.machine.Transition(req, lifecycle.ActionCheckIn, actor, s.now())
	if err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCheckIn)).Inc()
		return nil, err
	}

	if err := s.stg.Service().SetInProgress(ctx, requestID, *next.CheckInTime); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCheckIn)).Inc()
		return nil, fmt.Errorf("service: check in: %w", err)
	}
	transitionsApplied.WithLabelValues(string(lifecycle.ActionCheckIn)).Inc()

	s.notifyParty(ctx, req.RequesterID, "Service started", "Your companion has checked in.")
	s.log.Info("companion checked in", logger.String("request_id", requestID))
	return next, nil
}

func (s *requestService) CheckOut(ctx context.Context, requestID, companionID string) (*models.ServiceRequest, error) {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service: check out: %w", err)
	}

	actor := lifecycle.Actor{ID: companionID, Role: models.RoleCompanion}
	next, err := s.machine.Transition(req, lifecycle.ActionCheckOut, actor, s.now())
	if err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCheckOut)).Inc()
		return nil, err
	}

	if err := s.stg.Service().SetCompleted(ctx, requestID, *next.CheckOutTime); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionCheckOut)).Inc()
		return nil, fmt.Errorf("service: check out: %w", err)
	}
	transitionsApplied.WithLabelValues(string(lifecycle.ActionCheckOut)).Inc()

	s.monitors.Stop(trackingKey(requestID, req.RequesterID))
	s.monitors.Stop(trackingKey(requestID, req.CompanionID))

	s.notifyParty(ctx, req.RequesterID, "Service completed", "Please confirm the service so your companion gets paid.")
	s.log.Info("companion checked out", logger.String("request_id", requestID))
	return next, nil
}

func (s *requestService) Confirm(ctx context.Context, requestID, requesterID string) error {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service: confirm: %w", err)
	}

	actor := lifecycle.Actor{ID: requesterID, Role: models.RoleRequester}
	if _, err := s.machine.Transition(req, lifecycle.ActionConfirm, actor, s.now()); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionConfirm)).Inc()
		return err
	}

	if err := s.stg.Service().SetConfirmed(ctx, requestID); err != nil {
		transitionsRejected.WithLabelValues(string(lifecycle.ActionConfirm)).Inc()
		return fmt.Errorf("service: confirm: %w", err)
	}
	transitionsApplied.WithLabelValues(string(lifecycle.ActionConfirm)).Inc()

	for _, partyID := range []string{req.RequesterID, req.CompanionID} {
		if err := s.stg.Party().IncrementCompletedServices(ctx, partyID); err != nil {
			s.log.Error("failed to increment completed services", logger.String("party_id", partyID), logger.Error(err))
		}
	}

	s.notifyParty(ctx, req.CompanionID, "Service confirmed",
		fmt.Sprintf("The requester confirmed the service. Your payout is %d.", req.CompanionPayout))
	s.log.Info("service confirmed", logger.String("request_id", requestID))
	return nil
}

func (s *requestService) Quote(durationHours int) pricing.Breakdown {
	return pricing.Quote(durationHours, s.cfg.HourlyBase, s.cfg.CommissionRate)
}

// PaymentsFor sums confirmed payouts for a companion over a period.
func (s *requestService) PaymentsFor(ctx context.Context, companionID string, from, to time.Time) (int, []*models.ServiceRequest, error) {
	reqs, err := s.stg.Service().GetConfirmedByCompanion(ctx, companionID, from, to)
	if err != nil {
		return 0, nil, fmt.Errorf("service: payments: %w", err)
	}
	total := 0
	for _, req := range reqs {
		total += req.CompanionPayout
	}
	return total, reqs, nil
}

func (s *requestService) UpdateLiveLocation(ctx context.Context, requestID, partyID string, loc models.LatLng) error {
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service: update live location: %w", err)
	}

	var role models.Role
	switch partyID {
	case req.RequesterID:
		role = models.RoleRequester
	case req.CompanionID:
		role = models.RoleCompanion
	default:
		return fmt.Errorf("%w: party %s is not part of request %s", ErrValidation, partyID, requestID)
	}

	live := models.LiveLocation{LatLng: loc, UpdatedAt: s.now()}
	if err := s.stg.Service().UpdateLiveLocation(ctx, requestID, role, live); err != nil {
		return fmt.Errorf("service: update live location: %w", err)
	}
	return nil
}

// StartTracking arms the live view for one party: time gates for the
// companion's next action and a one-shot proximity alert on the counterpart's
// position. Starting again replaces the previous monitor for the same viewer.
func (s *requestService) StartTracking(requestID, viewerID string) error {
	ctx := context.Background()
	req, err := s.stg.Service().GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service: start tracking: %w", err)
	}
	if req.Status != models.StatusAccepted && req.Status != models.StatusInProgress {
		return fmt.Errorf("%w: request %s is not trackable in status %s", ErrValidation, requestID, req.Status)
	}

	var counterpart models.Role
	switch viewerID {
	case req.RequesterID:
		counterpart = models.RoleCompanion
	case req.CompanionID:
		counterpart = models.RoleRequester
	default:
		return fmt.Errorf("%w: party %s is not part of request %s", ErrValidation, viewerID, requestID)
	}

	viewer, err := s.stg.Party().GetByID(ctx, viewerID)
	if err != nil {
		return fmt.Errorf("service: start tracking: load viewer: %w", err)
	}

	monitor := tracking.NewMonitor(s.cfg.TrackingPoll, s.cfg.ProximityKm, s.notifier, s.log)
	source := &storedLocationSource{stg: s.stg.Service(), requestID: requestID, role: counterpart}

	status := req.Status
	checkIn := req.CheckInTime
	s.monitors.Start(trackingKey(requestID, viewerID), func(ctx context.Context) {
		// Each loop ends on its own predicate; a sibling finishing first must
		// not tear the others down, so the entry stays alive until all return.
		var wg sync.WaitGroup

		if viewer.ID == req.CompanionID {
			switch status {
			case models.StatusAccepted:
				wg.Add(1)
				go func() {
					defer wg.Done()
					monitor.AwaitGate(ctx, req.ScheduledStart, func() {
						s.notifyParty(ctx, viewer.ID, "Check-in available", "The scheduled start time has arrived.")
					})
				}()
			case models.StatusInProgress:
				if checkIn != nil {
					due := checkIn.Add(time.Duration(req.Duration)*time.Hour - s.cfg.CheckOutTolerance)
					wg.Add(1)
					go func() {
						defer wg.Done()
						monitor.AwaitGate(ctx, due, func() {
							s.notifyParty(ctx, viewer.ID, "Check-out available", "The service period is over.")
						})
					}()
				}
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.WatchProximity(ctx, req.Origin, source, viewer.ChatID,
				"Almost there", "The other party is close to the meeting point.")
		}()

		wg.Wait()
	})

	s.log.Info("tracking started",
		logger.String("request_id", requestID),
		logger.String("viewer_id", viewerID))
	return nil
}

func (s *requestService) StopTracking(requestID, viewerID string) {
	s.monitors.Stop(trackingKey(requestID, viewerID))
}

func (s *requestService) notifyParty(ctx context.Context, partyID, title, body string) {
	party, err := s.stg.Party().GetByID(ctx, partyID)
	if err != nil {
		s.log.Error("failed to load party for notification", logger.String("party_id", partyID), logger.Error(err))
		return
	}
	if party.ChatID == 0 {
		return
	}
	if err := s.notifier.SendNow(ctx, party.ChatID, title, body); err != nil {
		s.log.Warning("notification failed", logger.String("party_id", partyID), logger.Error(err))
	}
}

func trackingKey(requestID, viewerID string) string {
	return requestID + ":" + viewerID
}

// storedLocationSource reads the counterpart's latest reported position from
// storage on every poll. A missing position is reported as not ready rather
// than an error.
type storedLocationSource struct {
	stg       storage.IServiceStorage
	requestID string
	role      models.Role
}

func (s *storedLocationSource) Current(ctx context.Context) (models.LatLng, bool, error) {
	req, err := s.stg.GetByID(ctx, s.requestID)
	if err != nil {
		return models.LatLng{}, false, err
	}
	live := req.RequesterLive
	if s.role == models.RoleCompanion {
		live = req.CompanionLive
	}
	if live == nil {
		return models.LatLng{}, false, nil
	}
	return live.LatLng, true, nil
}
