package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSplitValidate(t *testing.T) {
	tests := []struct {
		name    string
		split   Split
		wantErr bool
	}{
		{"even", Split{Original: 50, Variant: 50}, false},
		{"skewed", Split{Original: 90, Variant: 10}, false},
		{"all original", Split{Original: 100, Variant: 0}, false},
		{"under 100", Split{Original: 60, Variant: 30}, true},
		{"over 100", Split{Original: 60, Variant: 50}, true},
		{"negative", Split{Original: 110, Variant: -10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.split.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSplit) {
					t.Errorf("Validate() error = %v, want ErrInvalidSplit", err)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestExperimentValidateDates(t *testing.T) {
	now := time.Now()
	e := Experiment{Split: Split{Original: 50, Variant: 50}, StartDate: now, EndDate: now}
	if err := e.Validate(); !errors.Is(err, ErrInvalidDates) {
		t.Errorf("Validate() error = %v, want ErrInvalidDates", err)
	}
	e.EndDate = now.Add(time.Hour)
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestExperimentVariantFor(t *testing.T) {
	e := Experiment{ContentIDOriginal: "c1", ContentIDVariant: "c2"}
	if v, ok := e.VariantFor("c1"); !ok || v != VariantOriginal {
		t.Errorf("VariantFor(c1) = %v, %v", v, ok)
	}
	if v, ok := e.VariantFor("c2"); !ok || v != VariantVariant {
		t.Errorf("VariantFor(c2) = %v, %v", v, ok)
	}
	if _, ok := e.VariantFor("c3"); ok {
		t.Error("VariantFor(c3) should not match")
	}
}

func TestElementKeyNormalizes(t *testing.T) {
	a := ContentElement{Type: "Phrase", Value: "  Free Shipping "}
	b := ContentElement{Type: "phrase", Value: "free shipping"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() != "phrase:free shipping" {
		t.Errorf("Key() = %q", a.Key())
	}
}
