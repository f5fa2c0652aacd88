package catalog

import "testing"

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		in      string
		want    Availability
		wantErr bool
	}{
		{"in_stock", InStock, false},
		{"low_stock", LowStock, false},
		{"out_of_stock", OutOfStock, false},
		{"", OutOfStock, false},
		{"IN_STOCK", "", true},
		{"available", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAvailability(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAvailability(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAvailability(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAvailability(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInteractionKind(t *testing.T) {
	for _, valid := range []string{"view", "click", "search_click", "add_to_cart", "purchase"} {
		if _, err := ParseInteractionKind(valid); err != nil {
			t.Errorf("ParseInteractionKind(%q) error: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "hover", "Click"} {
		if _, err := ParseInteractionKind(invalid); err == nil {
			t.Errorf("ParseInteractionKind(%q) expected error", invalid)
		}
	}
}

func TestInteractionKindClickLike(t *testing.T) {
	clickLike := []InteractionKind{InteractionClick, InteractionSearch, InteractionAddToCart, InteractionPurchase}
	for _, k := range clickLike {
		if !k.ClickLike() {
			t.Errorf("%s should be click-like", k)
		}
	}
	if InteractionView.ClickLike() {
		t.Error("view should not be click-like")
	}
	if InteractionKind("hover").ClickLike() {
		t.Error("unknown kind should not be click-like")
	}
}
