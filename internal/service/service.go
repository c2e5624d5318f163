package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/cache"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/realtime"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

var (
	ErrForbidden                = domain.ErrForbidden
	ErrManagerCodeRequired      = errors.New("manager code required")
	ErrInvalidManagerCode       = errors.New("invalid manager code")
	ErrManagerCodeNotConfigured = errors.New("manager code not configured")
)

// IsManagerCodeError reports whether err means the manager code check failed,
// whatever the reason.
func IsManagerCodeError(err error) bool {
	return errors.Is(err, ErrManagerCodeRequired) ||
		errors.Is(err, ErrInvalidManagerCode) ||
		errors.Is(err, ErrManagerCodeNotConfigured)
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTenantID string
	Location        *time.Location
	TaxRatePercent  float64
	TipRatePercent  float64
	SummaryTTL      time.Duration
	Cache           cache.SummaryCache
	Events          realtime.Publisher
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Service struct {
	repo            store.Repository
	cache           cache.SummaryCache
	events          realtime.Publisher
	validate        *validator.Validate
	loc             *time.Location
	defaultTenantID string
	taxRatePercent  float64
	tipRatePercent  float64
	summaryTTL      time.Duration
	now             func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultTenantID == "" {
		opts.DefaultTenantID = "main"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopSummaryCache{}
	}
	if opts.Events == nil {
		opts.Events = realtime.NoopPublisher{}
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:            repo,
		cache:           opts.Cache,
		events:          opts.Events,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		loc:             opts.Location,
		defaultTenantID: opts.DefaultTenantID,
		taxRatePercent:  opts.TaxRatePercent,
		tipRatePercent:  opts.TipRatePercent,
		summaryTTL:      opts.SummaryTTL,
		now:             opts.Now,
	}
}

func (s *Service) DefaultTenantID() string {
	return s.defaultTenantID
}

// Location is the business time zone that decides which day an order belongs to.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	return actor, nil
}

// scope resolves the tenant a request acts on. Super admins may name any tenant;
// everyone else is pinned to their own and may not name another.
func (s *Service) scope(ctx context.Context, requested string) (domain.Actor, string, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Actor{}, "", err
	}
	requested = strings.TrimSpace(requested)

	if actor.Role == domain.RoleSuperAdmin {
		if requested == "" {
			requested = s.defaultTenantID
		}
		return actor, requested, nil
	}

	tenantID := actor.TenantID
	if tenantID == "" {
		tenantID = s.defaultTenantID
	}
	if requested != "" && requested != tenantID {
		return domain.Actor{}, "", fmt.Errorf("%w: tenant %s is not yours", ErrForbidden, requested)
	}
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	switch {
	case err == nil && !tenant.Active:
		return domain.Actor{}, "", fmt.Errorf("%w: tenant is inactive", ErrForbidden)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return domain.Actor{}, "", err
	}
	return actor, tenantID, nil
}

// ResolveTenant applies the same tenant scoping as every other operation. It backs
// the realtime stream, which has no request body to carry a tenant.
func (s *Service) ResolveTenant(ctx context.Context, requested string) (string, error) {
	_, tenantID, err := s.scope(ctx, requested)
	return tenantID, err
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", store.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

// dateKey returns the business day for raw, or today when raw is blank.
func (s *Service) dateKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now().In(s.loc).Format(domain.DateKeyLayout), nil
	}
	if _, err := time.ParseInLocation(domain.DateKeyLayout, raw, s.loc); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return raw, nil
}

func (s *Service) dayWindow(dateKey string) (time.Time, time.Time) {
	from, _ := time.ParseInLocation(domain.DateKeyLayout, dateKey, s.loc)
	return from, from.AddDate(0, 0, 1)
}

func (s *Service) dateKeyOf(at time.Time) string {
	return at.In(s.loc).Format(domain.DateKeyLayout)
}

func (s *Service) logAudit(ctx context.Context, tenantID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		TenantID:      tenantID,
		ActorUsername: actor.Username,
		ActorRole:     string(actor.Role),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("audit: failed to write audit log")
	}
}

func (s *Service) publish(ctx context.Context, tenantID string, eventType string, entityID string) {
	event := domain.Event{Type: eventType, TenantID: tenantID, EntityID: entityID, At: s.now().UTC()}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("tenant_id", tenantID).Msg("realtime: publish failed")
	}
}

// touchDay drops the cached summaries of the day so the next read recomputes.
func (s *Service) touchDay(ctx context.Context, tenantID string, dateKey string) {
	if err := s.cache.Invalidate(ctx, tenantID, dateKey); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("date", dateKey).Msg("cache: failed to invalidate cash summary")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, tenantID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !actor.Capabilities().CanViewReports || !actor.Role.Privileged() {
		return nil, ErrForbidden
	}
	if limit < 1 {
		limit = 100
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return nil, err
	}
	from, to := s.dayWindow(dateKey)
	return s.repo.ListAuditLogs(ctx, tenantID, from, to, limit)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
