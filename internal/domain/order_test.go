package domain

import (
	"strings"
	"testing"
)

func TestAddressValidate(t *testing.T) {
	valid := Address{Name: "Ada", Line1: "1 Main St", City: "Lisbon", PostalCode: "1000-001", Country: "PT"}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}

	t.Run("line2 is optional", func(t *testing.T) {
		addr := valid
		addr.Line2 = ""
		if err := addr.Validate(); err != nil {
			t.Errorf("expected valid address without line2, got %v", err)
		}
	})

	t.Run("names the missing field", func(t *testing.T) {
		cases := []struct {
			field string
			mut   func(*Address)
		}{
			{"name", func(a *Address) { a.Name = "" }},
			{"line1", func(a *Address) { a.Line1 = "" }},
			{"city", func(a *Address) { a.City = "   " }},
			{"postal_code", func(a *Address) { a.PostalCode = "" }},
			{"country", func(a *Address) { a.Country = "" }},
		}
		for _, tc := range cases {
			addr := valid
			tc.mut(&addr)
			err := addr.Validate()
			if err == nil {
				t.Errorf("expected an error for missing %s", tc.field)
				continue
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("expected error to name %s, got %q", tc.field, err)
			}
		}
	})
}
