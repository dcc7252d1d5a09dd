package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"companioncare/pkg/models"
	"companioncare/storage"
)

// fakeStorage is an in-memory storage.IStorage for service tests.
type fakeStorage struct {
	mu       sync.Mutex
	services map[string]*models.ServiceRequest
	claims   map[string]*models.Claim
	parties  map[string]*models.Party
	reviews  map[string]*models.Review
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		services: make(map[string]*models.ServiceRequest),
		claims:   make(map[string]*models.Claim),
		parties:  make(map[string]*models.Party),
		reviews:  make(map[string]*models.Review),
	}
}

func (f *fakeStorage) Service() storage.IServiceStorage { return (*fakeServiceRepo)(f) }
func (f *fakeStorage) Claim() storage.IClaimStorage     { return (*fakeClaimRepo)(f) }
func (f *fakeStorage) Party() storage.IPartyStorage     { return (*fakePartyRepo)(f) }
func (f *fakeStorage) Review() storage.IReviewStorage   { return (*fakeReviewRepo)(f) }
func (f *fakeStorage) Close()                           {}
func (f *fakeStorage) GetPool() *pgxpool.Pool           { return nil }

type fakeServiceRepo fakeStorage

func (f *fakeServiceRepo) Create(_ context.Context, req *models.ServiceRequest) (*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *req
	f.services[req.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeServiceRepo) GetByID(_ context.Context, id string) (*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeServiceRepo) GetPending(_ context.Context) ([]*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ServiceRequest
	for _, req := range f.services {
		if req.Status == models.StatusPending {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeServiceRepo) GetByCompanion(_ context.Context, companionID string) ([]*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ServiceRequest
	for _, req := range f.services {
		if req.CompanionID == companionID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeServiceRepo) GetByRequester(_ context.Context, requesterID string) ([]*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ServiceRequest
	for _, req := range f.services {
		if req.RequesterID == requesterID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeServiceRepo) GetConfirmedByCompanion(_ context.Context, companionID string, from, to time.Time) ([]*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ServiceRequest
	for _, req := range f.services {
		if req.CompanionID != companionID || !req.Confirmed {
			continue
		}
		if req.ScheduledStart.Before(from) || req.ScheduledStart.After(to) {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeServiceRepo) Accept(_ context.Context, id, companionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return storage.ErrNotFound
	}
	if req.Status != models.StatusPending || req.CompanionID != "" {
		return storage.ErrAlreadyTaken
	}
	req.Status = models.StatusAccepted
	req.CompanionID = companionID
	return nil
}

func (f *fakeServiceRepo) Cancel(_ context.Context, id string) error {
	return f.setStatus(id, models.StatusPending, models.StatusCancelled)
}

func (f *fakeServiceRepo) SetInProgress(_ context.Context, id string, checkIn time.Time) error {
	if err := f.setStatus(id, models.StatusAccepted, models.StatusInProgress); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[id].CheckInTime = &checkIn
	return nil
}

func (f *fakeServiceRepo) SetCompleted(_ context.Context, id string, checkOut time.Time) error {
	if err := f.setStatus(id, models.StatusInProgress, models.StatusCompleted); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[id].CheckOutTime = &checkOut
	return nil
}

func (f *fakeServiceRepo) SetConfirmed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return storage.ErrNotFound
	}
	if req.Status != models.StatusCompleted || req.Confirmed {
		return storage.ErrAlreadyTaken
	}
	req.Confirmed = true
	return nil
}

func (f *fakeServiceRepo) SetConflicts(_ context.Context, id string) error {
	return f.setStatus(id, models.StatusCompleted, models.StatusConflicts)
}

func (f *fakeServiceRepo) SetReviewed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return storage.ErrNotFound
	}
	req.Reviewed = true
	return nil
}

func (f *fakeServiceRepo) UpdateLiveLocation(_ context.Context, id string, role models.Role, loc models.LiveLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return storage.ErrNotFound
	}
	if role == models.RoleRequester {
		req.RequesterLive = &loc
	} else {
		req.CompanionLive = &loc
	}
	return nil
}

func (f *fakeServiceRepo) setStatus(id string, from, to models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.services[id]
	if !ok {
		return storage.ErrNotFound
	}
	if req.Status != from {
		return storage.ErrAlreadyTaken
	}
	req.Status = to
	return nil
}

type fakeClaimRepo fakeStorage

func (f *fakeClaimRepo) Create(_ context.Context, claim *models.Claim) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *claim
	f.claims[claim.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeClaimRepo) GetByID(_ context.Context, id string) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claim, ok := f.claims[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *claim
	return &cp, nil
}

func (f *fakeClaimRepo) GetByRequester(_ context.Context, requesterID string, includeDeleted bool) ([]*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Claim
	for _, claim := range f.claims {
		if claim.RequesterID != requesterID {
			continue
		}
		if !includeDeleted && claim.Status == models.ClaimDeleted {
			continue
		}
		cp := *claim
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeClaimRepo) GetByService(_ context.Context, serviceID string) ([]*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Claim
	for _, claim := range f.claims {
		if claim.ServiceID == serviceID && claim.Status != models.ClaimDeleted {
			cp := *claim
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) Resolve(_ context.Context, id string, status models.ClaimStatus, response *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	claim, ok := f.claims[id]
	if !ok {
		return storage.ErrNotFound
	}
	if claim.Status != models.ClaimOpen {
		return storage.ErrAlreadyTaken
	}
	claim.Status = status
	claim.Response = response
	return nil
}

func (f *fakeClaimRepo) SoftDelete(_ context.Context, id string, deletedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	claim, ok := f.claims[id]
	if !ok {
		return storage.ErrNotFound
	}
	if claim.Status != models.ClaimOpen {
		return storage.ErrAlreadyTaken
	}
	claim.Status = models.ClaimDeleted
	claim.DeletedDate = &deletedAt
	return nil
}

type fakePartyRepo fakeStorage

func (f *fakePartyRepo) Create(_ context.Context, party *models.Party) (*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *party
	f.parties[party.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakePartyRepo) GetByID(_ context.Context, id string) (*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	party, ok := f.parties[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *party
	return &cp, nil
}

func (f *fakePartyRepo) UpdateHome(_ context.Context, id string, home models.LatLng, locationText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	party, ok := f.parties[id]
	if !ok {
		return storage.ErrNotFound
	}
	party.Home = home
	party.LocationText = locationText
	return nil
}

func (f *fakePartyRepo) IncrementCompletedServices(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	party, ok := f.parties[id]
	if !ok {
		return storage.ErrNotFound
	}
	party.CompletedServices++
	return nil
}

func (f *fakePartyRepo) SetVerified(_ context.Context, id string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	party, ok := f.parties[id]
	if !ok {
		return storage.ErrNotFound
	}
	party.Verified = verified
	return nil
}

type fakeReviewRepo fakeStorage

func (f *fakeReviewRepo) Create(_ context.Context, review *models.Review) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *review
	f.reviews[review.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeReviewRepo) GetForParty(_ context.Context, partyID string) ([]*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Review
	for _, review := range f.reviews {
		if review.ReviewedID == partyID {
			cp := *review
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeReviewRepo) AverageRating(_ context.Context, partyID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, n := 0, 0
	for _, review := range f.reviews {
		if review.ReviewedID == partyID {
			sum += review.Rating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu        sync.Mutex
	sent      []sentMessage
	scheduled []sentMessage
}

type sentMessage struct {
	ChatID int64
	Title  string
	Body   string
	At     time.Time
}

func (n *recordingNotifier) ScheduleAt(_ context.Context, chatID int64, at time.Time, title, body string, _ map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, sentMessage{ChatID: chatID, Title: title, Body: body, At: at})
	return nil
}

func (n *recordingNotifier) SendNow(_ context.Context, chatID int64, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{ChatID: chatID, Title: title, Body: body})
	return nil
}

func (n *recordingNotifier) sentTo(chatID int64) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, msg := range n.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

type fakeGeocoder struct {
	address string
	err     error
}

func (g *fakeGeocoder) Forward(context.Context, string) (models.LatLng, error) {
	return models.LatLng{}, g.err
}

func (g *fakeGeocoder) Reverse(context.Context, models.LatLng) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.address, nil
}
