package pricing

import "testing"

func TestPrice(t *testing.T) {
	tests := []struct {
		name       string
		duration   int
		hourlyBase int
		commission float64
		want       int
	}{
		{"four hours with commission", 4, 120, 0.15, 552},
		{"zero duration", 0, 120, 0.15, 0},
		{"no commission", 2, 100, 0, 200},
		{"zero duration no commission", 0, 100, 0, 0},
		{"negative duration", -1, 100, 0.05, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Price(tt.duration, tt.hourlyBase, tt.commission); got != tt.want {
				t.Fatalf("Price(%d, %d, %v) = %d, want %d", tt.duration, tt.hourlyBase, tt.commission, got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	b := Quote(4, 120, 0.15)

	if b.Price != 552 {
		t.Fatalf("price = %d, want 552", b.Price)
	}
	if b.PlatformCommission != 83 {
		t.Fatalf("commission = %d, want 83", b.PlatformCommission)
	}
	if b.CompanionPayout != 469 {
		t.Fatalf("payout = %d, want 469", b.CompanionPayout)
	}
	if b.CompanionPayout+b.PlatformCommission != b.Price {
		t.Fatal("payout and commission must sum to price")
	}
}

func TestQuoteZeroDuration(t *testing.T) {
	b := Quote(0, 130, 0.05)
	if b.Price != 0 || b.PlatformCommission != 0 || b.CompanionPayout != 0 {
		t.Fatalf("expected zero breakdown, got %+v", b)
	}
}
