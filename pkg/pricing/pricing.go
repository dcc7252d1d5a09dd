package pricing

import "math"

// Price returns the total charged to the requester for a service of the given
// duration in hours. The commission rate inflates the base cost; it is charged
// again when the payout is computed. That double application is the contract
// the rest of the system (and historical payments) depends on, so it must not
// be collapsed into a single charge.
func Price(durationHours, hourlyBase int, commissionRate float64) int {
	if durationHours <= 0 {
		return 0
	}
	base := float64(durationHours * hourlyBase)
	return int(math.Round(base + base*commissionRate))
}

// PlatformCommission is the cut retained by the platform.
func PlatformCommission(price int, commissionRate float64) int {
	return int(math.Round(float64(price) * commissionRate))
}

// CompanionPayout is what the companion receives once the platform commission
// is deducted from the price.
func CompanionPayout(price int, commissionRate float64) int {
	return price - PlatformCommission(price, commissionRate)
}

// Breakdown bundles the three figures stored on a service request.
type Breakdown struct {
	Price              int
	PlatformCommission int
	CompanionPayout    int
}

func Quote(durationHours, hourlyBase int, commissionRate float64) Breakdown {
	price := Price(durationHours, hourlyBase, commissionRate)
	commission := PlatformCommission(price, commissionRate)
	return Breakdown{
		Price:              price,
		PlatformCommission: commission,
		CompanionPayout:    price - commission,
	}
}
