package domain

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *EventConfig {
	return &EventConfig{
		Name:                "Spring Concert",
		Symbol:              "SPRING",
		Organizer:           "organizer",
		FacePrice:           dec("25"),
		MaxTickets:          500,
		MaxResalePercent:    120,
		MinResalePercent:    50,
		OrganizerFeePercent: 5,
	}
}

func registryLimits() Limits {
	return Limits{
		MaxResalePercent:       150,
		MaxOrganizerFeePercent: 10,
		MinTicketPrice:         dec("1"),
		MaxTickets:             MaxTicketsPerEvent,
	}
}

func TestValidateEventConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *EventConfig)
		field  string
		target error
	}{
		{"empty name", func(c *EventConfig) { c.Name = "  " }, "name", ErrEmptyName},
		{"long symbol", func(c *EventConfig) { c.Symbol = strings.Repeat("S", MaxSymbolLen+1) }, "symbol", ErrFieldTooLong},
		{"long base uri", func(c *EventConfig) { c.BaseURI = strings.Repeat("u", MaxBaseURILen+1) }, "base_uri", ErrFieldTooLong},
		{"no organizer", func(c *EventConfig) { c.Organizer = "" }, "organizer", ErrInvalidAddress},
		{"zero price", func(c *EventConfig) { c.FacePrice = dec("0") }, "face_price", ErrInvalidPrice},
		{"under min price", func(c *EventConfig) { c.FacePrice = dec("0.5") }, "face_price", ErrInvalidPrice},
		{"no tickets", func(c *EventConfig) { c.MaxTickets = 0 }, "max_tickets", ErrInvalidTicketCount},
		{"too many tickets", func(c *EventConfig) { c.MaxTickets = MaxTicketsPerEvent + 1 }, "max_tickets", ErrInvalidTicketCount},
		{"ceiling under face", func(c *EventConfig) { c.MaxResalePercent = 99 }, "max_resale_percent", ErrInvalidPercentage},
		{"ceiling over policy", func(c *EventConfig) { c.MaxResalePercent = 151 }, "max_resale_percent", ErrInvalidPercentage},
		{"floor too low", func(c *EventConfig) { c.MinResalePercent = 49 }, "min_resale_percent", ErrInvalidPercentage},
		{"floor over face", func(c *EventConfig) { c.MinResalePercent = 101 }, "min_resale_percent", ErrInvalidPercentage},
		{"fee over policy", func(c *EventConfig) { c.OrganizerFeePercent = 11 }, "organizer_fee_percent", ErrInvalidPercentage},
		{"negative fee", func(c *EventConfig) { c.OrganizerFeePercent = -1 }, "organizer_fee_percent", ErrInvalidPercentage},
	}

	if errs := ValidateEventConfig(validConfig(), registryLimits()); len(errs) != 0 {
		t.Fatalf("valid config rejected: %v", errs)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := ValidateEventConfig(cfg, registryLimits())
			if len(errs) != 1 {
				t.Fatalf("expected one field error, got %v", errs)
			}
			if errs[0].Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, errs[0].Field)
			}
			if !errors.Is(AsError(errs), tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, errs[0])
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	lim := registryLimits()

	if _, err := ValidateBatch(nil, MaxBatchSize, lim); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected empty batch, got %v", err)
	}

	big := make([]*EventConfig, MaxBatchSize+1)
	for i := range big {
		big[i] = validConfig()
	}
	if _, err := ValidateBatch(big, MaxBatchSize, lim); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected batch too large, got %v", err)
	}

	mixed := []*EventConfig{validConfig(), validConfig(), validConfig()}
	mixed[1].FacePrice = dec("0")
	mixed[2].Name = ""
	all, err := ValidateBatch(mixed, MaxBatchSize, lim)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected first failure to surface, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "events[1]") {
		t.Fatalf("expected index in message, got %q", err.Error())
	}
	if len(all[0]) != 0 || len(all[1]) != 1 || len(all[2]) != 1 {
		t.Fatalf("unexpected per-item errors %v", all)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "face_price" {
		t.Fatalf("expected validation error for face_price, got %v", err)
	}

	if all, err := ValidateBatch(big[:MaxBatchSize], MaxBatchSize, lim); err != nil || all != nil {
		t.Fatalf("full valid batch rejected: %v", err)
	}
}
