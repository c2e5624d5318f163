package service

import (
	"context"
	"fmt"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/merma"
	"deleonpos/backend/internal/xid"
)

func (s *Service) CreateMermaBatch(ctx context.Context, req domain.MermaCreateRequest) (domain.MermaBatch, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.MermaBatch{}, err
	}
	if err := s.check(req); err != nil {
		return domain.MermaBatch{}, err
	}
	dateKey, err := s.dateKey(req.DateKey)
	if err != nil {
		return domain.MermaBatch{}, err
	}

	batch, err := merma.New(merma.CreateParams{
		ID:       xid.New("merma"),
		TenantID: tenantID,
		DateKey:  dateKey,
		Product:  req.Product,
		Unit:     req.Unit,
		RawQty:   req.RawQty,
		UnitCost: req.UnitCostOriginal,
		Steps:    req.Steps,
	}, actor, s.now().UTC())
	if err != nil {
		return domain.MermaBatch{}, err
	}
	created, err := s.repo.CreateMermaBatch(ctx, batch)
	if err != nil {
		return domain.MermaBatch{}, err
	}
	s.afterMermaChange(ctx, created, "merma_create", fmt.Sprintf("product=%s,raw=%.2f,unit_cost=%.2f", created.Product, created.RawQty, created.UnitCostOriginal))
	return *created, nil
}

func (s *Service) CloseMermaBatch(ctx context.Context, batchID string, req domain.MermaCloseRequest) (domain.MermaBatch, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.MermaBatch{}, err
	}
	if err := s.check(req); err != nil {
		return domain.MermaBatch{}, err
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateMermaBatch(ctx, tenantID, strings.TrimSpace(batchID), func(batch *domain.MermaBatch) error {
		return merma.Close(batch, req.FinalQty, req.Steps, req.Note, actor, now)
	})
	if err != nil {
		return domain.MermaBatch{}, err
	}
	s.afterMermaChange(ctx, updated, "merma_close", fmt.Sprintf("final=%.2f,waste_cost=%.2f", updated.FinalQty, updated.WasteCost))
	return *updated, nil
}

// EditMermaBatch corrects a closed batch. Only privileged roles may do this.
func (s *Service) EditMermaBatch(ctx context.Context, batchID string, req domain.MermaEditRequest) (domain.MermaBatch, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.MermaBatch{}, err
	}
	if err := s.check(req); err != nil {
		return domain.MermaBatch{}, err
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateMermaBatch(ctx, tenantID, strings.TrimSpace(batchID), func(batch *domain.MermaBatch) error {
		return merma.Edit(batch, merma.EditParams{
			RawQty:   req.RawQty,
			UnitCost: req.UnitCostOriginal,
			FinalQty: req.FinalQty,
			Steps:    req.Steps,
			Note:     req.Note,
		}, actor, now)
	})
	if err != nil {
		return domain.MermaBatch{}, err
	}
	s.afterMermaChange(ctx, updated, "merma_edit", fmt.Sprintf("final=%.2f,waste_cost=%.2f", updated.FinalQty, updated.WasteCost))
	return *updated, nil
}

func (s *Service) ListMermaBatches(ctx context.Context, tenantID string, date string) (domain.MermaListResponse, error) {
	_, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return domain.MermaListResponse{}, err
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return domain.MermaListResponse{}, err
	}
	batches, err := s.repo.ListMermaBatches(ctx, tenantID, dateKey)
	if err != nil {
		return domain.MermaListResponse{}, err
	}
	return domain.MermaListResponse{Date: dateKey, Batches: batches, WasteCost: merma.DayWasteCost(batches)}, nil
}

func (s *Service) afterMermaChange(ctx context.Context, batch *domain.MermaBatch, action string, detail string) {
	s.logAudit(ctx, batch.TenantID, action, "merma_batch", batch.ID, detail)
	s.touchDay(ctx, batch.TenantID, batch.DateKey)
	s.publish(ctx, batch.TenantID, domain.EventMermaUpdated, batch.ID)
}
