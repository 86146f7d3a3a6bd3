package domain

import (
	"fmt"
	"strings"
)

// FieldError represents a single field's validation error. Err carries the
// typed condition so callers can match it with errors.Is / errors.As.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
	Err   error  `json:"-"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

func (e FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, err error) FieldError {
	return FieldError{Field: field, Msg: err.Error(), Err: err}
}

// ValidationError aggregates the field errors of one config.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return e.Fields[0].Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fe.Error())
	}
	return "invalid event config: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Fields))
	for _, fe := range e.Fields {
		out = append(out, fe)
	}
	return out
}

// AsError returns nil for an empty slice and a *ValidationError otherwise.
func AsError(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// ValidateEventConfig checks cfg against lim and the protocol bounds.
func ValidateEventConfig(cfg *EventConfig, lim Limits) []FieldError {
	var errs []FieldError

	name := strings.TrimSpace(cfg.Name)
	symbol := strings.TrimSpace(cfg.Symbol)
	if name == "" {
		errs = append(errs, fieldErr("name", ErrEmptyName))
	} else if len(name) > MaxNameLen {
		errs = append(errs, FieldError{"name", fmt.Sprintf("max length %d", MaxNameLen), ErrFieldTooLong})
	}
	if symbol == "" {
		errs = append(errs, fieldErr("symbol", ErrEmptyName))
	} else if len(symbol) > MaxSymbolLen {
		errs = append(errs, FieldError{"symbol", fmt.Sprintf("max length %d", MaxSymbolLen), ErrFieldTooLong})
	}
	if len(cfg.BaseURI) > MaxBaseURILen {
		errs = append(errs, FieldError{"base_uri", fmt.Sprintf("max length %d", MaxBaseURILen), ErrFieldTooLong})
	}

	if cfg.Organizer.IsZero() {
		errs = append(errs, fieldErr("organizer", ErrInvalidAddress))
	}

	if !cfg.FacePrice.IsPositive() {
		errs = append(errs, fieldErr("face_price", &PriceTooLowError{Price: cfg.FacePrice, Minimum: lim.MinTicketPrice}))
	} else if cfg.FacePrice.LessThan(lim.MinTicketPrice) {
		errs = append(errs, fieldErr("face_price", &PriceTooLowError{Price: cfg.FacePrice, Minimum: lim.MinTicketPrice}))
	}

	maxTickets := lim.MaxTickets
	if maxTickets == 0 || maxTickets > MaxTicketsPerEvent {
		maxTickets = MaxTicketsPerEvent
	}
	if cfg.MaxTickets == 0 || cfg.MaxTickets > maxTickets {
		errs = append(errs, fieldErr("max_tickets", &TicketCountError{Requested: cfg.MaxTickets, Max: maxTickets}))
	}

	ceiling := min(lim.MaxResalePercent, AbsoluteMaxResalePercent)
	if cfg.MaxResalePercent < MinMaxResalePercent || cfg.MaxResalePercent > ceiling {
		errs = append(errs, fieldErr("max_resale_percent", &PercentageError{
			Field: "max_resale_percent", Value: cfg.MaxResalePercent, Min: MinMaxResalePercent, Max: ceiling,
		}))
	}
	if cfg.MinResalePercent < MinResaleFloorPercent || cfg.MinResalePercent > MaxResaleFloorPercent {
		errs = append(errs, fieldErr("min_resale_percent", &PercentageError{
			Field: "min_resale_percent", Value: cfg.MinResalePercent, Min: MinResaleFloorPercent, Max: MaxResaleFloorPercent,
		}))
	}
	feeCeiling := min(lim.MaxOrganizerFeePercent, MaxOrganizerFeePercent)
	if cfg.OrganizerFeePercent < 0 || cfg.OrganizerFeePercent > feeCeiling {
		errs = append(errs, fieldErr("organizer_fee_percent", &PercentageError{
			Field: "organizer_fee_percent", Value: cfg.OrganizerFeePercent, Min: 0, Max: feeCeiling,
		}))
	}

	return errs
}

// ValidateBatch enforces the batch ceiling and per-item validation.
func ValidateBatch(configs []*EventConfig, maxItems int, lim Limits) (allErrs [][]FieldError, topErr error) {
	if len(configs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(configs) > maxItems {
		return nil, &BatchTooLargeError{Size: len(configs), Max: maxItems}
	}
	allErrs = make([][]FieldError, len(configs))
	first := -1
	for i := range configs {
		fe := ValidateEventConfig(configs[i], lim)
		if len(fe) > 0 {
			allErrs[i] = fe
			if first < 0 {
				first = i
			}
		}
	}
	if first >= 0 {
		// Wrap the first failure so errors.Is/As still reach the typed condition.
		return allErrs, fmt.Errorf("events[%d]: %w", first, AsError(allErrs[first]))
	}
	return nil, nil
}
