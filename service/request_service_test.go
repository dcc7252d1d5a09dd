package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"companioncare/config"
	"companioncare/pkg/dispatch"
	"companioncare/pkg/lifecycle"
	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/reminder"
	"companioncare/pkg/tracking"
	"companioncare/storage"
)

func testConfig() config.Config {
	return config.Config{
		RadiusKm:          5,
		ProximityKm:       1,
		HourlyBase:        120,
		CommissionRate:    0.15,
		MinHours:          1,
		MaxHours:          14,
		ReminderLead:      30 * time.Minute,
		CheckOutTolerance: 20 * time.Minute,
		TrackingPoll:      10 * time.Millisecond,
		DismissalTTL:      12 * time.Hour,
	}
}

type testEnv struct {
	svc      *requestService
	stg      *fakeStorage
	notifier *recordingNotifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	stg := newFakeStorage()
	notifier := &recordingNotifier{}
	log := logger.Nop()

	machine := lifecycle.NewMachine(cfg.RadiusKm, cfg.CheckOutTolerance)
	dispatcher := dispatch.New(cfg.RadiusKm, dispatch.NewMemoryDismissals(), log)
	reminders := reminder.New(notifier, cfg.ReminderLead, log)
	monitors := tracking.NewManager()
	t.Cleanup(monitors.StopAll)

	geocoder := &fakeGeocoder{address: "18 de Julio 1234"}

	svc := NewRequestService(cfg, stg, machine, dispatcher, reminders, notifier, geocoder, monitors, log).(*requestService)

	env := &testEnv{svc: svc, stg: stg, notifier: notifier, now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) addParty(t *testing.T, id string, role models.Role, chatID int64, home models.LatLng) {
	t.Helper()
	_, err := e.stg.Party().Create(context.Background(), &models.Party{
		ID: id, Role: role, Name: "party " + id, ChatID: chatID, Home: home,
	})
	if err != nil {
		t.Fatalf("add party: %v", err)
	}
}

func (e *testEnv) createRequest(t *testing.T, requesterID string, start time.Time, duration int, origin models.LatLng) *models.ServiceRequest {
	t.Helper()
	req, err := e.svc.Create(context.Background(), CreateRequestParams{
		RequesterID:    requesterID,
		Category:       models.CategoryCompany,
		ScheduledStart: start,
		Duration:       duration,
		Origin:         origin,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

var montevideo = models.LatLng{Latitude: -34.9011, Longitude: -56.1645}

func TestCreateComputesPriceAndAddress(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 100, montevideo)

	req := env.createRequest(t, "req-1", env.now.Add(2*time.Hour), 4, montevideo)

	if req.Price != 552 {
		t.Fatalf("price = %d, want 552", req.Price)
	}
	if req.PlatformCommission != 83 || req.CompanionPayout != 469 {
		t.Fatalf("breakdown = %d/%d, want 83/469", req.PlatformCommission, req.CompanionPayout)
	}
	if req.OriginText != "18 de Julio 1234" {
		t.Fatalf("origin text = %q", req.OriginText)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}
	if len(env.notifier.scheduled) != 1 {
		t.Fatalf("scheduled reminders = %d, want 1", len(env.notifier.scheduled))
	}
	wantAt := req.ScheduledStart.Add(-30 * time.Minute)
	if !env.notifier.scheduled[0].At.Equal(wantAt) {
		t.Fatalf("reminder at %v, want %v", env.notifier.scheduled[0].At, wantAt)
	}
}

func TestCreateGeocodeFailureFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	env.svc.geocoder = &fakeGeocoder{err: errors.New("timeout")}

	req := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)

	if req.OriginText != "Address unavailable" {
		t.Fatalf("origin text = %q, want fallback", req.OriginText)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)

	cases := []struct {
		name   string
		params CreateRequestParams
	}{
		{"duration too short", CreateRequestParams{
			RequesterID: "req-1", Category: models.CategoryCompany,
			ScheduledStart: env.now.Add(time.Hour), Duration: 0,
		}},
		{"duration too long", CreateRequestParams{
			RequesterID: "req-1", Category: models.CategoryCompany,
			ScheduledStart: env.now.Add(time.Hour), Duration: 15,
		}},
		{"start in the past", CreateRequestParams{
			RequesterID: "req-1", Category: models.CategoryCompany,
			ScheduledStart: env.now.Add(-time.Hour), Duration: 2,
		}},
		{"unknown category", CreateRequestParams{
			RequesterID: "req-1", Category: "karaoke",
			ScheduledStart: env.now.Add(time.Hour), Duration: 2,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(context.Background(), tc.params); !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAcceptAssignsAndNotifiesBothParties(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 100, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 200, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(2*time.Hour), 4, montevideo)

	got, err := env.svc.Accept(context.Background(), req.ID, "comp-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != models.StatusAccepted || got.CompanionID != "comp-1" {
		t.Fatalf("got status=%s companion=%s", got.Status, got.CompanionID)
	}

	stored, _ := env.stg.Service().GetByID(context.Background(), req.ID)
	if stored.Status != models.StatusAccepted {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if len(env.notifier.sentTo(100)) != 1 || len(env.notifier.sentTo(200)) != 1 {
		t.Fatalf("chat notifications: requester=%d companion=%d, want 1 each",
			len(env.notifier.sentTo(100)), len(env.notifier.sentTo(200)))
	}
}

func TestAcceptRaceSecondCompanionLoses(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 0, montevideo)
	env.addParty(t, "comp-2", models.RoleCompanion, 0, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(2*time.Hour), 4, montevideo)

	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := env.svc.Accept(context.Background(), req.ID, "comp-2")
	if !errors.Is(err, lifecycle.ErrInvalidTransition) && !errors.Is(err, storage.ErrAlreadyTaken) {
		t.Fatalf("second accept err = %v, want race loss", err)
	}

	stored, _ := env.stg.Service().GetByID(context.Background(), req.ID)
	if stored.CompanionID != "comp-1" {
		t.Fatalf("companion = %s, want comp-1", stored.CompanionID)
	}
}

func TestAcceptOutOfRadius(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	buenosAires := models.LatLng{Latitude: -34.6037, Longitude: -58.3816}
	env.addParty(t, "comp-far", models.RoleCompanion, 0, buenosAires)
	req := env.createRequest(t, "req-1", env.now.Add(2*time.Hour), 4, montevideo)

	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-far"); !errors.Is(err, lifecycle.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestCancelOnlyByOwner(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)

	if err := env.svc.Cancel(context.Background(), req.ID, "someone-else"); !errors.Is(err, lifecycle.ErrWrongActor) {
		t.Fatalf("err = %v, want ErrWrongActor", err)
	}
	if err := env.svc.Cancel(context.Background(), req.ID, "req-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, _ := env.stg.Service().GetByID(context.Background(), req.ID)
	if stored.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
}

func TestCheckInTooEarly(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 0, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(2*time.Hour), 4, montevideo)
	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := env.svc.CheckIn(context.Background(), req.ID, "comp-1"); !errors.Is(err, lifecycle.ErrTooEarly) {
		t.Fatalf("err = %v, want ErrTooEarly", err)
	}
}

func TestFullLifecycleToConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 100, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 200, montevideo)
	start := env.now.Add(2 * time.Hour)
	req := env.createRequest(t, "req-1", start, 4, montevideo)

	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	env.now = start.Add(time.Minute)
	if _, err := env.svc.CheckIn(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("check in: %v", err)
	}

	// Still inside the service window minus the tolerance.
	env.now = env.now.Add(3 * time.Hour)
	if _, err := env.svc.CheckOut(context.Background(), req.ID, "comp-1"); !errors.Is(err, lifecycle.ErrTooEarly) {
		t.Fatalf("early checkout err = %v, want ErrTooEarly", err)
	}

	env.now = env.now.Add(45 * time.Minute)
	got, err := env.svc.CheckOut(context.Background(), req.ID, "comp-1")
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if got.Status != models.StatusCompleted || got.CheckOutTime == nil {
		t.Fatalf("got status=%s checkout=%v", got.Status, got.CheckOutTime)
	}

	if err := env.svc.Confirm(context.Background(), req.ID, "req-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	stored, _ := env.stg.Service().GetByID(context.Background(), req.ID)
	if !stored.Confirmed {
		t.Fatal("request not confirmed")
	}
	for _, id := range []string{"req-1", "comp-1"} {
		party, _ := env.stg.Party().GetByID(context.Background(), id)
		if party.CompletedServices != 1 {
			t.Fatalf("party %s completed services = %d, want 1", id, party.CompletedServices)
		}
	}
}

func TestCandidatesFilteredByRadiusAndDismissals(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 0, montevideo)

	near := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)
	far := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2,
		models.LatLng{Latitude: -34.6037, Longitude: -58.3816})
	dismissed := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)

	if err := env.svc.Dismiss(context.Background(), "comp-1", dismissed.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	got, err := env.svc.CandidatesFor(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != near.ID {
		t.Fatalf("candidates = %d, want only %s (far=%s dismissed=%s)", len(got), near.ID, far.ID, dismissed.ID)
	}
}

func TestPaymentsForSumsConfirmedPayouts(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 0, montevideo)

	start := env.now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		req := env.createRequest(t, "req-1", start, 4, montevideo)
		if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
			t.Fatalf("accept: %v", err)
		}
		env.now = start.Add(time.Minute)
		if _, err := env.svc.CheckIn(context.Background(), req.ID, "comp-1"); err != nil {
			t.Fatalf("check in: %v", err)
		}
		env.now = env.now.Add(4 * time.Hour)
		if _, err := env.svc.CheckOut(context.Background(), req.ID, "comp-1"); err != nil {
			t.Fatalf("check out: %v", err)
		}
		if err := env.svc.Confirm(context.Background(), req.ID, "req-1"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		env.now = env.now.Add(time.Hour)
		start = env.now.Add(time.Hour)
	}

	total, reqs, err := env.svc.PaymentsFor(context.Background(), "comp-1",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("confirmed services = %d, want 2", len(reqs))
	}
	if total != 2*469 {
		t.Fatalf("total = %d, want %d", total, 2*469)
	}
}

func TestUpdateLiveLocationRejectsStranger(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)

	if err := env.svc.UpdateLiveLocation(context.Background(), req.ID, "stranger", montevideo); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	if err := env.svc.UpdateLiveLocation(context.Background(), req.ID, "req-1", montevideo); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := env.stg.Service().GetByID(context.Background(), req.ID)
	if stored.RequesterLive == nil || stored.RequesterLive.Latitude != montevideo.Latitude {
		t.Fatalf("requester live = %+v", stored.RequesterLive)
	}
}

func TestStartTrackingRequiresActiveRequest(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 0, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)

	if err := env.svc.StartTracking(req.ID, "req-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for pending request", err)
	}
}

func TestStartTrackingProximityAlertFiresOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 100, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 200, montevideo)
	req := env.createRequest(t, "req-1", env.now.Add(time.Hour), 2, montevideo)
	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	baseline := len(env.notifier.sentTo(100))

	if err := env.svc.StartTracking(req.ID, "req-1"); err != nil {
		t.Fatalf("start tracking: %v", err)
	}
	defer env.svc.StopTracking(req.ID, "req-1")

	// Roughly 900m north of the origin, inside the 1km threshold.
	near := models.LatLng{Latitude: montevideo.Latitude + 0.008, Longitude: montevideo.Longitude}
	if err := env.svc.UpdateLiveLocation(context.Background(), req.ID, "comp-1", near); err != nil {
		t.Fatalf("update live location: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(env.notifier.sentTo(100)) > baseline {
			break
		}
		select {
		case <-deadline:
			t.Fatal("proximity alert never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	msgs := env.notifier.sentTo(100)
	if msgs[len(msgs)-1].Title != "Almost there" {
		t.Fatalf("alert title = %q", msgs[len(msgs)-1].Title)
	}
}

func waitForTitle(t *testing.T, env *testEnv, chatID int64, title string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, msg := range env.notifier.sentTo(chatID) {
			if msg.Title == title {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("notification %q never delivered to chat %d", title, chatID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCheckInGateSurvivesEarlyProximityAlert(t *testing.T) {
	env := newTestEnv(t)
	env.addParty(t, "req-1", models.RoleRequester, 100, montevideo)
	env.addParty(t, "comp-1", models.RoleCompanion, 200, montevideo)

	// The gate polls against the wall clock, so the start sits a few hundred
	// milliseconds of real time ahead while the requester is already within
	// the proximity threshold.
	start := time.Now().Add(400 * time.Millisecond)
	req := env.createRequest(t, "req-1", start, 2, montevideo)
	if _, err := env.svc.Accept(context.Background(), req.ID, "comp-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Roughly 500m from the origin.
	near := models.LatLng{Latitude: montevideo.Latitude + 0.0045, Longitude: montevideo.Longitude}
	if err := env.svc.UpdateLiveLocation(context.Background(), req.ID, "req-1", near); err != nil {
		t.Fatalf("update live location: %v", err)
	}

	if err := env.svc.StartTracking(req.ID, "comp-1"); err != nil {
		t.Fatalf("start tracking: %v", err)
	}
	defer env.svc.StopTracking(req.ID, "comp-1")

	// The proximity alert fires first, well before the start time.
	waitForTitle(t, env, 200, "Almost there")

	// The check-in gate must still unlock once the start time passes.
	waitForTitle(t, env, 200, "Check-in available")
}
