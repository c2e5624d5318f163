// Package merma tracks raw-goods lots through processing and derives the waste and
// real unit cost once the usable yield is known.
package merma

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
	"deleonpos/backend/internal/store"
)

var (
	ErrNotOpen   = fmt.Errorf("%w: merma batch is already closed", store.ErrConflict)
	ErrNotClosed = fmt.Errorf("%w: merma batch is not closed", store.ErrConflict)
)

type Figures struct {
	TotalCost         float64
	WasteQty          float64
	WasteCost         float64
	EffectiveUnitCost float64
}

// Derive computes the closing figures. finalQty must be in (0, rawQty].
func Derive(rawQty, unitCost, finalQty float64) (Figures, error) {
	rawQty = money.Amount(rawQty)
	unitCost = money.Amount(unitCost)
	finalQty = money.Amount(finalQty)
	if rawQty <= 0 {
		return Figures{}, fmt.Errorf("%w: raw quantity must be positive", store.ErrInvalidInput)
	}
	if unitCost < 0 {
		return Figures{}, fmt.Errorf("%w: unit cost must not be negative", store.ErrInvalidInput)
	}
	if finalQty <= 0 || finalQty > rawQty {
		return Figures{}, fmt.Errorf("%w: final quantity must be greater than 0 and at most the raw quantity", store.ErrInvalidInput)
	}
	total := rawQty * unitCost
	waste := rawQty - finalQty
	return Figures{
		TotalCost:         total,
		WasteQty:          waste,
		WasteCost:         waste * unitCost,
		EffectiveUnitCost: total / finalQty,
	}, nil
}

type CreateParams struct {
	ID       string
	TenantID string
	DateKey  string
	Product  string
	Unit     string
	RawQty   float64
	UnitCost float64
	Steps    []domain.MermaStep
}

func New(p CreateParams, actor domain.Actor, now time.Time) (domain.MermaBatch, error) {
	if !actor.Capabilities().CanManageMerma {
		return domain.MermaBatch{}, domain.ErrForbidden
	}
	product := strings.TrimSpace(p.Product)
	if product == "" {
		return domain.MermaBatch{}, fmt.Errorf("%w: product is required", store.ErrInvalidInput)
	}
	raw := money.Amount(p.RawQty)
	unitCost := money.Amount(p.UnitCost)
	if raw <= 0 || unitCost < 0 {
		return domain.MermaBatch{}, fmt.Errorf("%w: raw quantity must be positive and unit cost not negative", store.ErrInvalidInput)
	}
	steps, err := cleanSteps(p.Steps)
	if err != nil {
		return domain.MermaBatch{}, err
	}
	return domain.MermaBatch{
		ID:               p.ID,
		TenantID:         p.TenantID,
		DateKey:          p.DateKey,
		Product:          product,
		Unit:             strings.TrimSpace(p.Unit),
		RawQty:           raw,
		UnitCostOriginal: unitCost,
		TotalCost:        raw * unitCost,
		Steps:            steps,
		Status:           domain.MermaStatusOpen,
		CreatedBy:        actor.Username,
		CreatedAt:        now,
	}, nil
}

// Close records the usable yield. Steps, when given, replace the recorded ones.
func Close(batch *domain.MermaBatch, finalQty float64, steps []domain.MermaStep, note string, actor domain.Actor, now time.Time) error {
	if !actor.Capabilities().CanManageMerma {
		return domain.ErrForbidden
	}
	if batch.Status != domain.MermaStatusOpen {
		return ErrNotOpen
	}
	if err := apply(batch, batch.RawQty, batch.UnitCostOriginal, finalQty, steps, note); err != nil {
		return err
	}
	closedAt := now
	batch.Status = domain.MermaStatusClosed
	batch.ClosedBy = actor.Username
	batch.ClosedAt = &closedAt
	return nil
}

type EditParams struct {
	RawQty   *float64
	UnitCost *float64
	FinalQty *float64
	Steps    []domain.MermaStep
	Note     *string
}

// Edit corrects a closed batch and re-derives its figures.
func Edit(batch *domain.MermaBatch, p EditParams, actor domain.Actor, now time.Time) error {
	if !actor.Capabilities().CanEditClosedMerma {
		return domain.ErrForbidden
	}
	if batch.Status != domain.MermaStatusClosed {
		return ErrNotClosed
	}
	raw, unitCost, final, note := batch.RawQty, batch.UnitCostOriginal, batch.FinalQty, batch.Note
	if p.RawQty != nil {
		raw = *p.RawQty
	}
	if p.UnitCost != nil {
		unitCost = *p.UnitCost
	}
	if p.FinalQty != nil {
		final = *p.FinalQty
	}
	if p.Note != nil {
		note = *p.Note
	}
	if err := apply(batch, raw, unitCost, final, p.Steps, note); err != nil {
		return err
	}
	editedAt := now
	batch.EditedBy = actor.Username
	batch.EditedAt = &editedAt
	return nil
}

func apply(batch *domain.MermaBatch, raw, unitCost, final float64, steps []domain.MermaStep, note string) error {
	figures, err := Derive(raw, unitCost, final)
	if err != nil {
		return err
	}
	if steps != nil {
		cleaned, err := cleanSteps(steps)
		if err != nil {
			return err
		}
		batch.Steps = cleaned
	}
	batch.RawQty = money.Amount(raw)
	batch.UnitCostOriginal = money.Amount(unitCost)
	batch.FinalQty = money.Amount(final)
	batch.TotalCost = figures.TotalCost
	batch.WasteQty = figures.WasteQty
	batch.WasteCost = figures.WasteCost
	batch.EffectiveUnitCost = figures.EffectiveUnitCost
	batch.Note = strings.TrimSpace(note)
	return nil
}

func cleanSteps(steps []domain.MermaStep) ([]domain.MermaStep, error) {
	out := make([]domain.MermaStep, 0, len(steps))
	for _, step := range slices.Clone(steps) {
		step.Label = strings.TrimSpace(step.Label)
		step.Qty = money.Amount(step.Qty)
		if step.Label == "" || step.Qty < 0 {
			return nil, fmt.Errorf("%w: every step needs a label and a non-negative quantity", store.ErrInvalidInput)
		}
		out = append(out, step)
	}
	return out, nil
}

// DayWasteCost sums the waste cost of the closed batches.
func DayWasteCost(batches []domain.MermaBatch) float64 {
	total := 0.0
	for _, batch := range batches {
		if batch.Status == domain.MermaStatusClosed {
			total += batch.WasteCost
		}
	}
	return total
}
