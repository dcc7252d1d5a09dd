package service

import (
	"errors"

	"companioncare/config"
	"companioncare/pkg/dispatch"
	"companioncare/pkg/geocode"
	"companioncare/pkg/lifecycle"
	"companioncare/pkg/logger"
	"companioncare/pkg/notify"
	"companioncare/pkg/reminder"
	"companioncare/pkg/tracking"
	"companioncare/storage"
)

// ErrValidation marks malformed input rejected before any state mutation.
var ErrValidation = errors.New("service: validation failed")

type IServiceManager interface {
	Request() RequestService
	Claim() ClaimService
	Party() PartyService
	Shutdown()
}

type serviceManager struct {
	requestService RequestService
	claimService   ClaimService
	partyService   PartyService
	monitors       *tracking.Manager
}

func New(
	cfg config.Config,
	stg storage.IStorage,
	dismissals dispatch.DismissalStore,
	notifier notify.Notifier,
	geocoder geocode.Geocoder,
	log logger.ILogger,
) IServiceManager {
	machine := lifecycle.NewMachine(cfg.RadiusKm, cfg.CheckOutTolerance)
	dispatcher := dispatch.New(cfg.RadiusKm, dismissals, log)
	reminders := reminder.New(notifier, cfg.ReminderLead, log)
	monitors := tracking.NewManager()

	claimService := NewClaimService(stg, machine, log)

	return &serviceManager{
		requestService: NewRequestService(cfg, stg, machine, dispatcher, reminders, notifier, geocoder, monitors, log),
		claimService:   claimService,
		partyService:   NewPartyService(stg, log),
		monitors:       monitors,
	}
}

func (s *serviceManager) Request() RequestService {
	return s.requestService
}

func (s *serviceManager) Claim() ClaimService {
	return s.claimService
}

func (s *serviceManager) Party() PartyService {
	return s.partyService
}

// Shutdown cancels every live tracking monitor.
func (s *serviceManager) Shutdown() {
	s.monitors.StopAll()
}
