package model

// MarketState is the per-kind aggregate of spec.md §4.6: counts of waiting
// passengers (pw), vacant vehicles (nv), assigned vehicles (na), and
// occupied vehicles (no), plus the pickup/dropoff time averages the MPC
// controller consumes. The simulator does not update AvgPickupTime or
// AvgDropoffTime; they keep whatever value they were given (zero by default).
type MarketState struct {
	PW int // passengers waiting for this kind
	NV int // vacant vehicles of this kind
	NA int // assigned (en route to pickup) vehicles of this kind
	NO int // occupied (passenger onboard) vehicles of this kind

	AvgPickupTime  float64 // ta
	AvgDropoffTime float64 // to

	Fare       float64
	FleetDelta float64 // AV only: pending fleet-size change from the last MPC solve
}

// Snapshot is the market-wide state passed into the MPC controller: the HV
// and AV MarketState plus the fares the controller may adjust.
type Snapshot struct {
	Time float64
	HV   MarketState
	AV   MarketState
}
