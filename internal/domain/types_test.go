package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAddressValid(t *testing.T) {
	tests := []struct {
		in   Address
		want bool
	}{
		{"alice", true},
		{"0xabc", true},
		{"", false},
		{"   ", false},
		{" alice", false},
		{"alice\t", false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("%q.Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddressUnmarshalTrims(t *testing.T) {
	var v struct {
		To   Address   `json:"to"`
		List []Address `json:"list"`
	}
	if err := json.Unmarshal([]byte(`{"to":"  bob\n","list":[" a ","b"]}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.To != "bob" || !v.To.Valid() {
		t.Fatalf("expected bob, got %q", v.To)
	}
	if len(v.List) != 2 || v.List[0] != "a" || v.List[1] != "b" {
		t.Fatalf("unexpected list %q", v.List)
	}
}

func TestCustodySurplusError(t *testing.T) {
	err := error(&CustodySurplusError{Balance: dec("105"), Required: dec("100")})
	if !errors.Is(err, ErrCustodySurplus) || errors.Is(err, ErrInsufficientContractBalance) {
		t.Fatalf("unexpected identity for %v", err)
	}
	if ErrorCode(err) != "custody_surplus" {
		t.Fatalf("expected custody_surplus code, got %q", ErrorCode(err))
	}
}
