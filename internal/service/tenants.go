package service

import (
	"context"
	"strings"

	"deleonpos/backend/internal/domain"
)

func (s *Service) requireSuperAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.Capabilities().CanManageTenants {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	if _, err := s.requireSuperAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTenants(ctx)
}

func (s *Service) CreateTenant(ctx context.Context, req domain.TenantCreateRequest) (domain.Tenant, error) {
	if _, err := s.requireSuperAdmin(ctx); err != nil {
		return domain.Tenant{}, err
	}
	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	req.RNC = strings.TrimSpace(req.RNC)
	if err := s.check(req); err != nil {
		return domain.Tenant{}, err
	}

	created, err := s.repo.CreateTenant(ctx, domain.Tenant{
		ID:        req.ID,
		Name:      req.Name,
		RNC:       req.RNC,
		Active:    true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	s.logAudit(ctx, created.ID, "tenant_create", "tenant", created.ID, "name="+created.Name)
	s.publish(ctx, created.ID, domain.EventTenantUpdated, created.ID)
	return *created, nil
}

func (s *Service) SetTenantActive(ctx context.Context, tenantID string, active bool) (domain.Tenant, error) {
	if _, err := s.requireSuperAdmin(ctx); err != nil {
		return domain.Tenant{}, err
	}
	updated, err := s.repo.SetTenantActive(ctx, strings.TrimSpace(tenantID), active)
	if err != nil {
		return domain.Tenant{}, err
	}
	action := "tenant_deactivate"
	if active {
		action = "tenant_activate"
	}
	s.logAudit(ctx, updated.ID, action, "tenant", updated.ID, "")
	s.publish(ctx, updated.ID, domain.EventTenantUpdated, updated.ID)
	return *updated, nil
}
