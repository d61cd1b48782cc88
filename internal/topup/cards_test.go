package topup

import (
	"errors"
	"testing"
)

func TestValidateCard(t *testing.T) {
	cases := []struct {
		name   string
		number string
		brand  string
		ok     bool
	}{
		{"visa 16", "4111111111111111", "visa", true},
		{"visa with spaces", "4111 1111 1111 1111", "visa", true},
		{"visa with dashes", "4111-1111-1111-1111", "visa", true},
		{"visa 13", "4222222222222", "visa", true},
		{"mastercard", "5500005555555559", "mastercard", true},
		{"declined test card still valid format", DeclinedTestCard, "visa", true},
		{"luhn failure", "4111111111111112", "", false},
		{"amex rejected", "378282246310005", "", false},
		{"letters", "4111a11111111111", "", false},
		{"empty", "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			brand, err := ValidateCard(c.number)
			if c.ok && (err != nil || brand != c.brand) {
				t.Errorf("ValidateCard(%q) = (%q, %v), want (%q, nil)", c.number, brand, err, c.brand)
			}
			if !c.ok && !errors.Is(err, ErrCardInvalid) {
				t.Errorf("ValidateCard(%q): got %v, want ErrCardInvalid", c.number, err)
			}
		})
	}
}

func TestMaskCardNumber(t *testing.T) {
	if got := MaskCardNumber("4111 1111 1111 1111"); got != "4111****1111" {
		t.Errorf("mask = %q, want 4111****1111", got)
	}
	if got := MaskCardNumber("12345"); got != "****" {
		t.Errorf("short input mask = %q, want ****", got)
	}
}
