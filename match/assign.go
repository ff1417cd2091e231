package match

import (
	"ridesim/geo"
	"ridesim/model"
)

// Result is one applied assignment, ready for the driver to schedule the
// pickup/dropoff events and append an assignment_data row (spec.md §6).
type Result struct {
	Vehicle      *model.Vehicle
	Passenger    *model.Passenger
	DispatchTime float64
	DeliveryTime float64
	DispatchDist float64
}

// AssignKind runs one matcher tick for a single kind: update vehicle
// locations is the caller's responsibility (spec.md §4.3 step order), this
// only builds the cost matrix, solves it, and returns the resulting
// Results. Expired passengers must already have been removed from waiting
// by the caller.
func AssignKind(g *geo.Graph, t float64, vehicles []*model.Vehicle, passengers []*model.Passenger) []Result {
	if len(vehicles) == 0 || len(passengers) == 0 {
		return nil
	}
	cost := make([][]float64, len(vehicles))
	for i, v := range vehicles {
		cost[i] = make([]float64, len(passengers))
		for j, p := range passengers {
			cost[i][j] = geo.Duration(g, v.Loc, p.Origin)
		}
	}
	pairs := Solve(cost)

	results := make([]Result, 0, len(pairs))
	for _, pr := range pairs {
		v := vehicles[pr.VehicleIdx]
		p := passengers[pr.PassengerIdx]
		dispatch := t + pr.Duration
		delivery := dispatch + p.TripDuration
		results = append(results, Result{
			Vehicle:      v,
			Passenger:    p,
			DispatchTime: dispatch,
			DeliveryTime: delivery,
			DispatchDist: geo.Distance(g, v.Loc, p.Origin),
		})
	}
	return results
}
