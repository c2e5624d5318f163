package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/cashsession"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/merma"
	"deleonpos/backend/internal/reconcile"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

func (s *Service) sessionResponse(session *domain.CashSession, actor domain.Actor) domain.SessionResponse {
	allowed := cashsession.Allowed(session, actor.Capabilities())
	actions := make([]string, 0, len(allowed))
	for _, action := range allowed {
		actions = append(actions, string(action))
	}
	return domain.SessionResponse{
		Session: session,
		Phase:   string(cashsession.PhaseOf(session)),
		Actions: actions,
	}
}

// lookupSession returns nil without error when no session exists yet.
func (s *Service) lookupSession(ctx context.Context, tenantID, dateKey, registerID string) (*domain.CashSession, error) {
	session, err := s.repo.GetSession(ctx, tenantID, dateKey, registerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return session, err
}

func (s *Service) GetSession(ctx context.Context, tenantID string, date string, registerID string) (domain.SessionResponse, error) {
	actor, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	registerID = strings.TrimSpace(registerID)
	if registerID == "" {
		return domain.SessionResponse{}, fmt.Errorf("%w: register_id is required", store.ErrInvalidInput)
	}
	session, err := s.lookupSession(ctx, tenantID, dateKey, registerID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return s.sessionResponse(session, actor), nil
}

func (s *Service) ListSessions(ctx context.Context, tenantID string, date string) ([]domain.CashSession, error) {
	_, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, tenantID, dateKey)
}

func (s *Service) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionResponse, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SessionResponse{}, err
	}
	dateKey, err := s.dateKey(req.DateKey)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	registerID := strings.TrimSpace(req.RegisterID)

	existing, err := s.lookupSession(ctx, tenantID, dateKey, registerID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	next, err := cashsession.Open(existing, cashsession.OpenParams{
		ID:           xid.New("cash"),
		TenantID:     tenantID,
		DateKey:      dateKey,
		RegisterID:   registerID,
		OpeningFloat: req.OpeningFloat,
	}, actor, s.now().UTC())
	if err != nil {
		return domain.SessionResponse{}, err
	}

	created, err := s.repo.CreateSession(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another device opened the same register first.
			return domain.SessionResponse{}, cashsession.ErrSessionExists
		}
		return domain.SessionResponse{}, err
	}

	s.afterCashChange(ctx, created, "cash_session_open", fmt.Sprintf("register=%s,opening=%.2f", registerID, created.OpeningFloat))
	return s.sessionResponse(created, actor), nil
}

func (s *Service) AddCash(ctx context.Context, req domain.SessionAddCashRequest) (domain.SessionResponse, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SessionResponse{}, err
	}
	dateKey, err := s.dateKey(req.DateKey)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	now := s.now().UTC()
	updated, err := s.updateSession(ctx, tenantID, dateKey, req.RegisterID, func(session *domain.CashSession) error {
		next, err := cashsession.AddCash(session, req.Amount, req.Note, actor, now)
		if err != nil {
			return err
		}
		*session = next
		return nil
	})
	if err != nil {
		return domain.SessionResponse{}, err
	}

	s.afterCashChange(ctx, updated, "cash_session_add", fmt.Sprintf("register=%s,amount=%.2f", updated.RegisterID, req.Amount))
	return s.sessionResponse(updated, actor), nil
}

// AdjustOpening overwrites the opening float. A privileged caller adjusting a
// register with no session yet opens one with that float.
func (s *Service) AdjustOpening(ctx context.Context, req domain.SessionAdjustOpeningRequest) (domain.SessionResponse, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SessionResponse{}, err
	}
	dateKey, err := s.dateKey(req.DateKey)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	if actor.Capabilities().CanAdjustOpeningFloat {
		existing, err := s.lookupSession(ctx, tenantID, dateKey, req.RegisterID)
		if err != nil {
			return domain.SessionResponse{}, err
		}
		if existing == nil {
			return s.OpenSession(ctx, domain.SessionOpenRequest{
				TenantID:     tenantID,
				DateKey:      dateKey,
				RegisterID:   req.RegisterID,
				OpeningFloat: req.OpeningFloat,
			})
		}
	}

	now := s.now().UTC()
	previous := 0.0
	updated, err := s.updateSession(ctx, tenantID, dateKey, req.RegisterID, func(session *domain.CashSession) error {
		previous = session.OpeningFloat
		next, err := cashsession.AdjustOpening(session, req.OpeningFloat, req.Note, actor, now)
		if err != nil {
			return err
		}
		*session = next
		return nil
	})
	if err != nil {
		return domain.SessionResponse{}, err
	}

	s.afterCashChange(ctx, updated, "cash_session_adjust_opening", fmt.Sprintf("register=%s,previous=%.2f,value=%.2f", updated.RegisterID, previous, updated.OpeningFloat))
	return s.sessionResponse(updated, actor), nil
}

func (s *Service) CloseSession(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	return s.closeOrAdjust(ctx, req, false)
}

// AdjustClose re-records the counted total of an already closed session.
func (s *Service) AdjustClose(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	return s.closeOrAdjust(ctx, req, true)
}

func (s *Service) closeOrAdjust(ctx context.Context, req domain.SessionCloseRequest, adjust bool) (domain.SessionResponse, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SessionResponse{}, err
	}
	caps := actor.Capabilities()
	if (!adjust && !caps.CanCloseSession) || (adjust && !caps.CanAdjustClosedSession) {
		return domain.SessionResponse{}, cashsession.ErrNotPermitted
	}
	dateKey, err := s.dateKey(req.DateKey)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	authorizedBy, err := s.verifyManagerCode(ctx, tenantID, req.ManagerCode)
	if err != nil {
		s.logAudit(ctx, tenantID, "manager_code_rejected", "cash_session", req.RegisterID, err.Error())
		return domain.SessionResponse{}, err
	}

	now := s.now().UTC()
	updated, err := s.updateSession(ctx, tenantID, dateKey, req.RegisterID, func(session *domain.CashSession) error {
		if req.SessionID != "" && req.SessionID != session.ID {
			return fmt.Errorf("%w: session_id does not match the register's session", store.ErrConflict)
		}
		var (
			next domain.CashSession
			err  error
		)
		if adjust {
			next, err = cashsession.AdjustClose(session, req.CountedTotal, req.Note, actor, authorizedBy, now)
		} else {
			next, err = cashsession.Close(session, req.CountedTotal, req.Note, actor, authorizedBy, now)
		}
		if err != nil {
			return err
		}
		*session = next
		return nil
	})
	if err != nil {
		return domain.SessionResponse{}, err
	}

	action := "cash_session_close"
	if adjust {
		action = "cash_session_adjust_close"
	}
	s.afterCashChange(ctx, updated, action, fmt.Sprintf("register=%s,counted=%.2f,authorized_by=%s", updated.RegisterID, req.CountedTotal, authorizedBy))
	return s.sessionResponse(updated, actor), nil
}

func (s *Service) updateSession(ctx context.Context, tenantID, dateKey, registerID string, mutate store.SessionMutator) (*domain.CashSession, error) {
	registerID = strings.TrimSpace(registerID)
	updated, err := s.repo.UpdateSession(ctx, tenantID, dateKey, registerID, mutate)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && !errors.Is(err, cashsession.ErrNoSession) {
			return nil, cashsession.ErrNoSession
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) afterCashChange(ctx context.Context, session *domain.CashSession, action string, detail string) {
	s.logAudit(ctx, session.TenantID, action, "cash_session", session.ID, detail)
	s.touchDay(ctx, session.TenantID, session.DateKey)
	s.publish(ctx, session.TenantID, domain.EventCashUpdated, session.ID)
}

// CashSummary computes the reconciliation for a day. With a register the session
// figures of that register are used; without one every register of the day is
// combined and the counted total is only known once all of them are closed.
func (s *Service) CashSummary(ctx context.Context, tenantID string, date string, registerID string) (reconcile.Summary, error) {
	actor, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return reconcile.Summary{}, err
	}
	if !actor.Capabilities().CanViewReports {
		return reconcile.Summary{}, ErrForbidden
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return reconcile.Summary{}, err
	}
	registerID = strings.TrimSpace(registerID)

	if cached, ok, err := s.cache.Get(ctx, tenantID, dateKey, registerID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("date", dateKey).Msg("cache: failed to read cash summary")
	} else if ok {
		return *cached, nil
	}
	// Read before the rows; a mutation landing after this makes the Set below a no-op.
	generation, genErr := s.cache.Generation(ctx, tenantID, dateKey)
	if genErr != nil {
		log.Warn().Err(genErr).Str("tenant_id", tenantID).Str("date", dateKey).Msg("cache: failed to read summary generation")
	}

	from, to := s.dayWindow(dateKey)
	orders, err := s.repo.ListOrders(ctx, tenantID, from, to)
	if err != nil {
		return reconcile.Summary{}, err
	}
	batches, err := s.repo.ListMermaBatches(ctx, tenantID, dateKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	sessions, err := s.repo.ListSessions(ctx, tenantID, dateKey)
	if err != nil {
		return reconcile.Summary{}, err
	}

	in := reconcile.Input{
		TenantID:   tenantID,
		DateKey:    dateKey,
		RegisterID: registerID,
		Orders:     orders,
		WasteCost:  merma.DayWasteCost(batches),
	}
	applySessions(&in, sessions, registerID)
	summary := reconcile.Summarize(in)

	if genErr != nil {
		return summary, nil
	}
	if err := s.cache.Set(ctx, summary, generation, s.summaryTTL); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("date", dateKey).Msg("cache: failed to store cash summary")
	}
	return summary, nil
}

func applySessions(in *reconcile.Input, sessions []domain.CashSession, registerID string) {
	counted, allClosed, matched := 0.0, true, 0
	for _, session := range sessions {
		if registerID != "" && session.RegisterID != registerID {
			continue
		}
		matched++
		in.OpeningFloat += session.OpeningFloat
		in.AddedCash += session.AddedTotal
		if session.Status == domain.SessionStatusClosed && session.Closing != nil {
			counted += session.Closing.CountedTotal
		} else {
			allClosed = false
		}
	}
	if matched > 0 && allClosed {
		in.CountedTotal = &counted
	}
}
