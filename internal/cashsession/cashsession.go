// Package cashsession holds the lifecycle of a register's cash session for one
// business day: no session, open, closed, plus the privileged corrections.
//
// Transitions are pure. They take the current session (nil when none exists) and
// return the next value; persistence and manager code checks live in the service.
package cashsession

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
	"deleonpos/backend/internal/store"
)

type Phase string

const (
	PhaseNone   Phase = "no_session"
	PhaseOpen   Phase = "open"
	PhaseClosed Phase = "closed"
)

type Action string

const (
	ActionOpen          Action = "open"
	ActionAddCash       Action = "add_cash"
	ActionAdjustOpening Action = "adjust_opening"
	ActionClose         Action = "close"
	ActionAdjustClose   Action = "adjust_close"
)

var (
	ErrSessionExists = fmt.Errorf("%w: cash session already exists for this day and register, use add-cash or adjust instead", store.ErrConflict)
	ErrNoSession     = fmt.Errorf("%w: no cash session for this day and register", store.ErrNotFound)
	ErrNotOpen       = fmt.Errorf("%w: cash session is not open", store.ErrConflict)
	ErrNotClosed     = fmt.Errorf("%w: cash session is not closed", store.ErrConflict)
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a finite non-negative number", store.ErrInvalidInput)
	ErrNotPermitted  = fmt.Errorf("%w: role not permitted for this cash session action", domain.ErrForbidden)
	ErrFloatLocked   = fmt.Errorf("%w: opening float already set", domain.ErrForbidden)
)

func PhaseOf(session *domain.CashSession) Phase {
	switch {
	case session == nil:
		return PhaseNone
	case session.Status == domain.SessionStatusClosed:
		return PhaseClosed
	default:
		return PhaseOpen
	}
}

// Allowed lists the actions the actor may attempt on session right now. Close and
// adjust-close still need a valid manager code when attempted.
func Allowed(session *domain.CashSession, caps domain.Capabilities) []Action {
	actions := []Action{}
	switch PhaseOf(session) {
	case PhaseNone:
		if caps.CanOpenSession {
			actions = append(actions, ActionOpen)
		}
	case PhaseOpen:
		if caps.CanAddCash {
			actions = append(actions, ActionAddCash)
		}
		if caps.CanAdjustOpeningFloat || (caps.CanOpenSession && session.OpeningFloat == 0) {
			actions = append(actions, ActionAdjustOpening)
		}
		if caps.CanCloseSession {
			actions = append(actions, ActionClose)
		}
	case PhaseClosed:
		if caps.CanAdjustClosedSession {
			actions = append(actions, ActionAdjustClose)
		}
	}
	return actions
}

type OpenParams struct {
	ID           string
	TenantID     string
	DateKey      string
	RegisterID   string
	OpeningFloat float64
}

func Open(existing *domain.CashSession, p OpenParams, actor domain.Actor, now time.Time) (domain.CashSession, error) {
	if !actor.Capabilities().CanOpenSession {
		return domain.CashSession{}, ErrNotPermitted
	}
	if existing != nil {
		return domain.CashSession{}, ErrSessionExists
	}
	if strings.TrimSpace(p.RegisterID) == "" || strings.TrimSpace(p.DateKey) == "" {
		return domain.CashSession{}, fmt.Errorf("%w: date and register_id are required", store.ErrInvalidInput)
	}
	opening, err := nonNegative(p.OpeningFloat)
	if err != nil {
		return domain.CashSession{}, err
	}
	return domain.CashSession{
		ID:           p.ID,
		TenantID:     p.TenantID,
		RegisterID:   strings.TrimSpace(p.RegisterID),
		DateKey:      p.DateKey,
		OpeningFloat: opening,
		Additions:    []domain.CashAddition{},
		Status:       domain.SessionStatusOpen,
		OpenedBy:     actor.Username,
		OpenedAt:     now,
		Adjustments:  []domain.SessionAdjustment{},
	}, nil
}

func AddCash(session *domain.CashSession, amount float64, note string, actor domain.Actor, now time.Time) (domain.CashSession, error) {
	if !actor.Capabilities().CanAddCash {
		return domain.CashSession{}, ErrNotPermitted
	}
	if err := requirePhase(session, PhaseOpen); err != nil {
		return domain.CashSession{}, err
	}
	amount = money.Amount(amount)
	if amount <= 0 {
		return domain.CashSession{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
	}
	next := clone(*session)
	next.AddedTotal += amount
	next.Additions = append(next.Additions, domain.CashAddition{
		Amount: amount,
		Note:   strings.TrimSpace(note),
		By:     actor.Username,
		At:     now,
	})
	return next, nil
}

// AdjustOpening overwrites the opening float before close. Roles without
// CanAdjustOpeningFloat may only set it while it is still zero.
func AdjustOpening(session *domain.CashSession, value float64, note string, actor domain.Actor, now time.Time) (domain.CashSession, error) {
	caps := actor.Capabilities()
	if !caps.CanAdjustOpeningFloat && !caps.CanOpenSession {
		return domain.CashSession{}, ErrNotPermitted
	}
	if err := requirePhase(session, PhaseOpen); err != nil {
		return domain.CashSession{}, err
	}
	if !caps.CanAdjustOpeningFloat && session.OpeningFloat != 0 {
		return domain.CashSession{}, ErrFloatLocked
	}
	value, err := nonNegative(value)
	if err != nil {
		return domain.CashSession{}, err
	}
	next := clone(*session)
	next.Adjustments = append(next.Adjustments, domain.SessionAdjustment{
		Kind:     domain.AdjustmentOpening,
		Previous: session.OpeningFloat,
		Value:    value,
		Note:     strings.TrimSpace(note),
		By:       actor.Username,
		At:       now,
	})
	next.OpeningFloat = value
	return next, nil
}

// Close records the counted drawer total. authorizedBy names whoever's manager
// code was verified for this close.
func Close(session *domain.CashSession, counted float64, note string, actor domain.Actor, authorizedBy string, now time.Time) (domain.CashSession, error) {
	if !actor.Capabilities().CanCloseSession {
		return domain.CashSession{}, ErrNotPermitted
	}
	if err := requirePhase(session, PhaseOpen); err != nil {
		return domain.CashSession{}, err
	}
	counted, err := nonNegative(counted)
	if err != nil {
		return domain.CashSession{}, err
	}
	next := clone(*session)
	next.Status = domain.SessionStatusClosed
	next.Closing = &domain.CashClosing{
		CountedTotal: counted,
		Note:         strings.TrimSpace(note),
		ClosedBy:     actor.Username,
		AuthorizedBy: authorizedBy,
		ClosedAt:     now,
	}
	return next, nil
}

// AdjustClose re-records the counted total of a closed session and appends the
// change to the adjustment trail.
func AdjustClose(session *domain.CashSession, counted float64, note string, actor domain.Actor, authorizedBy string, now time.Time) (domain.CashSession, error) {
	if !actor.Capabilities().CanAdjustClosedSession {
		return domain.CashSession{}, ErrNotPermitted
	}
	if err := requirePhase(session, PhaseClosed); err != nil {
		return domain.CashSession{}, err
	}
	counted, err := nonNegative(counted)
	if err != nil {
		return domain.CashSession{}, err
	}
	next := clone(*session)
	previous := 0.0
	closing := domain.CashClosing{}
	if session.Closing != nil {
		previous = session.Closing.CountedTotal
		closing = *session.Closing
	}
	closing.CountedTotal = counted
	closing.Note = strings.TrimSpace(note)
	closing.AuthorizedBy = authorizedBy
	next.Closing = &closing
	next.Adjustments = append(next.Adjustments, domain.SessionAdjustment{
		Kind:     domain.AdjustmentClose,
		Previous: previous,
		Value:    counted,
		Note:     closing.Note,
		By:       actor.Username,
		At:       now,
	})
	return next, nil
}

func requirePhase(session *domain.CashSession, want Phase) error {
	got := PhaseOf(session)
	if got == want {
		return nil
	}
	switch {
	case got == PhaseNone:
		return ErrNoSession
	case want == PhaseOpen:
		return ErrNotOpen
	default:
		return ErrNotClosed
	}
}

func nonNegative(v float64) (float64, error) {
	v = money.Amount(v)
	if v < 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

func clone(s domain.CashSession) domain.CashSession {
	s.Additions = slices.Clone(s.Additions)
	s.Adjustments = slices.Clone(s.Adjustments)
	if s.Closing != nil {
		closing := *s.Closing
		s.Closing = &closing
	}
	return s
}

// IsConflict reports whether err is a lifecycle conflict such as a double open.
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
