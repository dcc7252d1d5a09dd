package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"companioncare/pkg/lifecycle"
	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/sorting"
	"companioncare/storage"
)

type OpenClaimParams struct {
	ServiceID   string
	RequesterID string
	Reason      string
	Description string
}

type ClaimService interface {
	Open(ctx context.Context, params OpenClaimParams) (*models.Claim, error)
	GetByID(ctx context.Context, id string) (*models.Claim, error)
	ListForRequester(ctx context.Context, requesterID string, includeDeleted bool) ([]*models.Claim, error)
	ListForService(ctx context.Context, serviceID string) ([]*models.Claim, error)
	Resolve(ctx context.Context, claimID, response string) error
	Reject(ctx context.Context, claimID, response string) error
	Delete(ctx context.Context, claimID, requesterID string) error
}

type claimService struct {
	stg     storage.IStorage
	machine *lifecycle.Machine
	log     logger.ILogger
	now     func() time.Time
}

func NewClaimService(stg storage.IStorage, machine *lifecycle.Machine, log logger.ILogger) ClaimService {
	return &claimService{stg: stg, machine: machine, log: log, now: time.Now}
}

// Open disputes a completed service. The request is parked in conflicts and a
// claim record carries the dispute until an operator resolves or rejects it.
func (c *claimService) Open(ctx context.Context, params OpenClaimParams) (*models.Claim, error) {
	if params.Reason == "" {
		return nil, fmt.Errorf("%w: claim reason is required", ErrValidation)
	}

	req, err := c.stg.Service().GetByID(ctx, params.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service: open claim: %w", err)
	}

	// A request already in conflicts can carry further claims; otherwise the
	// dispute must be a legal transition from the current status.
	alreadyDisputed := req.Status == models.StatusConflicts
	if alreadyDisputed {
		if req.RequesterID != params.RequesterID {
			return nil, fmt.Errorf("%w: request %s does not belong to %s", ErrValidation, req.ID, params.RequesterID)
		}
	} else {
		actor := lifecycle.Actor{ID: params.RequesterID, Role: models.RoleRequester}
		if _, err := c.machine.Transition(req, lifecycle.ActionDispute, actor, c.now()); err != nil {
			return nil, err
		}
	}

	claim := &models.Claim{
		ID:          uuid.NewString(),
		ServiceID:   req.ID,
		RequesterID: req.RequesterID,
		CompanionID: req.CompanionID,
		Reason:      params.Reason,
		Description: params.Description,
		Status:      models.ClaimOpen,
		CreatedAt:   c.now(),
	}

	created, err := c.stg.Claim().Create(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("service: open claim: %w", err)
	}
	if !alreadyDisputed {
		if err := c.stg.Service().SetConflicts(ctx, req.ID); err != nil {
			return nil, fmt.Errorf("service: open claim: mark request: %w", err)
		}
	}

	c.log.Info("claim opened",
		logger.String("claim_id", created.ID),
		logger.String("service_id", req.ID))
	return created, nil
}

func (c *claimService) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	return c.stg.Claim().GetByID(ctx, id)
}

func (c *claimService) ListForRequester(ctx context.Context, requesterID string, includeDeleted bool) ([]*models.Claim, error) {
	claims, err := c.stg.Claim().GetByRequester(ctx, requesterID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("service: list claims: %w", err)
	}
	sorting.Claims(claims)
	return claims, nil
}

func (c *claimService) ListForService(ctx context.Context, serviceID string) ([]*models.Claim, error) {
	claims, err := c.stg.Claim().GetByService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("service: list claims: %w", err)
	}
	sorting.Claims(claims)
	return claims, nil
}

func (c *claimService) Resolve(ctx context.Context, claimID, response string) error {
	return c.settle(ctx, claimID, response, lifecycle.ActionResolve, models.ClaimResolved)
}

func (c *claimService) Reject(ctx context.Context, claimID, response string) error {
	return c.settle(ctx, claimID, response, lifecycle.ActionReject, models.ClaimRejected)
}

func (c *claimService) settle(ctx context.Context, claimID, response string, action lifecycle.Action, status models.ClaimStatus) error {
	claim, err := c.stg.Claim().GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("service: settle claim: %w", err)
	}
	if claim.Status != models.ClaimOpen {
		return fmt.Errorf("%w: claim %s is already %s", ErrValidation, claimID, claim.Status)
	}

	req, err := c.stg.Service().GetByID(ctx, claim.ServiceID)
	if err != nil {
		return fmt.Errorf("service: settle claim: %w", err)
	}
	if _, err := c.machine.Transition(req, action, lifecycle.Actor{}, c.now()); err != nil {
		return err
	}

	if err := c.stg.Claim().Resolve(ctx, claimID, status, &response); err != nil {
		return fmt.Errorf("service: settle claim: %w", err)
	}

	c.log.Info("claim settled",
		logger.String("claim_id", claimID),
		logger.String("status", string(status)))
	return nil
}

// Delete soft-deletes a claim. Only its owner may delete, the record stays
// with a deletion date so history views can filter it.
func (c *claimService) Delete(ctx context.Context, claimID, requesterID string) error {
	claim, err := c.stg.Claim().GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("service: delete claim: %w", err)
	}
	if claim.RequesterID != requesterID {
		return fmt.Errorf("%w: claim %s does not belong to %s", ErrValidation, claimID, requesterID)
	}
	if claim.DeletedDate != nil {
		return fmt.Errorf("%w: claim %s already deleted", ErrValidation, claimID)
	}

	if err := c.stg.Claim().SoftDelete(ctx, claimID, c.now()); err != nil {
		return fmt.Errorf("service: delete claim: %w", err)
	}
	c.log.Info("claim deleted", logger.String("claim_id", claimID))
	return nil
}
