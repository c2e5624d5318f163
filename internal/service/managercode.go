package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/store"
)

var weakManagerCodes = map[string]bool{
	"1234": true, "4321": true, "1111": true, "0000": true, "1212": true,
	"123456": true, "654321": true, "111111": true, "000000": true, "121212": true,
}

// WeakManagerCode reports codes that are trivially guessed: repeated digits,
// straight runs up or down, and a short blocklist.
func WeakManagerCode(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) < 4 {
		return true
	}
	if weakManagerCodes[code] {
		return true
	}
	same, up, down := true, true, true
	for i := 1; i < len(code); i++ {
		d := int(code[i]) - int(code[i-1])
		same = same && d == 0
		up = up && (d == 1 || d == -9)
		down = down && (d == -1 || d == 9)
	}
	return same || up || down
}

func codeHint(code string) string {
	if len(code) <= 2 {
		return "**"
	}
	return strings.Repeat("*", len(code)-2) + code[len(code)-2:]
}

func (s *Service) ManagerCodeStatus(ctx context.Context, tenantID string) (domain.ManagerCodeStatus, error) {
	_, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	code, err := s.repo.GetManagerCode(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ManagerCodeStatus{Configured: false}, nil
	}
	if err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	updatedAt := code.UpdatedAt
	return domain.ManagerCodeStatus{Configured: true, Hint: code.Hint, UpdatedAt: &updatedAt}, nil
}

func (s *Service) SetManagerCode(ctx context.Context, req domain.ManagerCodeSetRequest) (domain.ManagerCodeStatus, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	if !actor.Capabilities().CanManageManagerCode {
		return domain.ManagerCodeStatus{}, ErrForbidden
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := s.check(req); err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	if WeakManagerCode(req.Code) {
		return domain.ManagerCodeStatus{}, fmt.Errorf("%w: manager code is too easy to guess", store.ErrInvalidInput)
	}
	if err := s.storeManagerCode(ctx, tenantID, req.Code, actor.Username); err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	s.logAudit(ctx, tenantID, "manager_code_set", "manager_code", tenantID, "hint="+codeHint(req.Code))
	return s.ManagerCodeStatus(ctx, tenantID)
}

func (s *Service) ClearManagerCode(ctx context.Context, tenantID string) error {
	actor, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return err
	}
	if !actor.Capabilities().CanManageManagerCode {
		return ErrForbidden
	}
	if err := s.repo.DeleteManagerCode(ctx, tenantID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	s.logAudit(ctx, tenantID, "manager_code_clear", "manager_code", tenantID, "")
	return nil
}

// EnsureManagerCode installs code for the tenant unless one is already configured.
// It runs at startup, outside any request.
func (s *Service) EnsureManagerCode(ctx context.Context, tenantID string, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	if _, err := s.repo.GetManagerCode(ctx, tenantID); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := s.storeManagerCode(ctx, tenantID, code, "bootstrap"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) storeManagerCode(ctx context.Context, tenantID string, code string, by string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash manager code: %w", err)
	}
	return s.repo.UpsertManagerCode(ctx, domain.ManagerCode{
		TenantID:  tenantID,
		Hash:      string(hash),
		Hint:      codeHint(code),
		UpdatedBy: by,
		UpdatedAt: s.now().UTC(),
	})
}

// verifyManagerCode checks code against the tenant's stored hash and returns the
// name recorded as authorizer.
func (s *Service) verifyManagerCode(ctx context.Context, tenantID string, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrManagerCodeRequired
	}
	stored, err := s.repo.GetManagerCode(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrManagerCodeNotConfigured
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(code)) != nil {
		return "", ErrInvalidManagerCode
	}
	return "manager_code:" + stored.UpdatedBy, nil
}
