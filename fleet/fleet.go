// Package fleet implements the vehicle lifecycle state machine of
// spec.md §4.2: HV entry/continuation/exit decisions and AV
// activation/deactivation, grounded on original_source/Supply.py's
// EV/NewEV/TripCompletion logic.
package fleet

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"

	"ridesim/geo"
	"ridesim/model"
)

// Quantity declares how many vehicles of a kind to deploy, mirroring the
// teacher's fleet-quantity file shape.
type Quantity struct {
	Kind     string `json:"kind"` // "HV" or "AV"
	Quantity int    `json:"quantity"`
}

// File maps the layout of the vehicle_file config input.
type File struct {
	Fleet []Quantity `json:"fleet"`
}

// LoadFleetFromReader parses the vehicle file into fleet quantities.
func LoadFleetFromReader(r io.Reader) ([]Quantity, error) {
	dec := json.NewDecoder(r)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode vehicle file: %w", err)
	}
	q := make([]Quantity, 0, len(f.Fleet))
	for _, it := range f.Fleet {
		if it.Quantity > 0 {
			q = append(q, it)
		}
	}
	return q, nil
}

// Wage is the current market-clearing hourly wage estimate used by the
// neoclassical continuation rule (Parameters.wage * occupancy in
// Supply.py). The fleet package does not own this value; callers pass the
// current estimate in at decision time.

// BuildFleet constructs concrete Vehicle records from fleet quantities,
// assigning HV shift/income parameters and AV activation state the way
// Supply.py's load_simple_vehicles does for a single-depot initial layout,
// generalised to two kinds.
func BuildFleet(q []Quantity, depot geo.Location, initialActiveAV int, rng *rand.Rand) []*model.Vehicle {
	totalHV := 0
	for _, it := range q {
		if it.Kind != "AV" {
			totalHV += it.Quantity
		}
	}
	// Preferred shift-start times spread evenly over the first hour
	// (Supply.py's load_simple_vehicles: linspace(0, 3600, fleet_size)).
	shiftStarts := make([]float64, totalHV)
	for i := range shiftStarts {
		if totalHV > 1 {
			shiftStarts[i] = float64(i) * 3600.0 / float64(totalHV-1)
		}
	}

	vehicles := make([]*model.Vehicle, 0)
	var id int64 = 1
	activated := 0
	hvIdx := 0
	for _, it := range q {
		for i := 0; i < it.Quantity; i++ {
			switch it.Kind {
			case "AV":
				active := activated < initialActiveAV
				if active {
					activated++
				}
				status := model.StatusInactive
				if active {
					status = model.StatusVacant
				}
				v := &model.Vehicle{
					ID:     id,
					Kind:   model.KindAV,
					Status: status,
					Loc:    depot,
					AV:     &model.AVState{Active: active},
				}
				vehicles = append(vehicles, v)
			default:
				hv := newHVState(rng)
				hv.ShiftStart = shiftStarts[hvIdx]
				hvIdx++
				v := &model.Vehicle{
					ID:     id,
					Kind:   model.KindHV,
					Status: model.StatusInactive, // enters the market at ShiftStart via a scheduled entry event
					Loc:    depot,
					HV:     hv,
				}
				vehicles = append(vehicles, v)
			}
			id++
		}
	}
	return vehicles
}

// newHVState samples the neoclassical/income-targeting mixture and the
// shift/income parameters Supply.py draws per driver.
func newHVState(rng *rand.Rand) *model.HVState {
	usesIncome := rng.Float64() >= 0.5 // neoclassical proportion = 0.5
	return &model.HVState{
		ShiftStart:     0,
		HourlyCost:     10 + rng.Float64()*30, // uniform(10, 40)
		TargetIncome:   50 + rng.Float64()*250, // uniform(50, 300)
		UsesIncomeRule: usesIncome,
	}
}

const maximumWorkSeconds = 10 * 3600 // maximum_work in Supply.py's Parser defaults

// HourlyCost is a per-driver reservation wage; sampled once at entry and
// held fixed for the driver's tenure (Supply.py's hourlyCost).
type HourlyCostSampler func() float64

// DecideExit implements Supply.py's EV.decide_exit: an HV forced to exit
// after maximumWorkSeconds or at simulation end, otherwise a neoclassical
// driver continues with probability increasing in (wage - hourlyCost), and
// an income-targeting driver continues until EarnedToday reaches
// TargetIncome.
//
// wage is the current market wage estimate (Parameters.wage * occupancy);
// hourlyCost is the driver's reservation wage; draw is the caller-supplied
// uniform(0,1) random draw (threaded through the simulator's single seeded
// PRNG per spec.md §5).
func DecideExit(v *model.Vehicle, t float64, hourlyCost, wage, draw float64, end bool) bool {
	hv := v.HV
	hv.ExitDecisions++

	if end || t-hv.ShiftStart >= maximumWorkSeconds {
		hv.ActualExits++
		return true
	}

	if !hv.UsesIncomeRule {
		if (hourlyCost-wage)/hourlyCost < draw-0.2 {
			return false // continues working
		}
		hv.ActualExits++
		return true
	}

	if hv.EarnedToday < hv.TargetIncome {
		return false
	}
	hv.ActualExits++
	return true
}

// ShouldEnter implements NewEV.trigger's neoclassical deferral: a
// neoclassical candidate only enters if the expected wage already clears
// their reservation cost; otherwise entry is deferred unless near the
// drop-dead window before the last passenger request, gated by a second
// draw mirroring Supply.py's retry condition.
func ShouldEnter(neoclassical bool, hourlyCost, expectedWage float64) bool {
	return !neoclassical || expectedWage >= hourlyCost
}

// ShouldRetryEntry implements the deferred-entry retry branch: neoclassical
// candidates who declined to enter may still try again 300s later, as long
// as the attempt happens more than 600s before the last passenger arrives
// and a second stochastic condition holds.
func ShouldRetryEntry(t, lastPassengerTime, hourlyCost, expectedWage, draw float64) bool {
	if t+600 >= lastPassengerTime {
		return false
	}
	return (hourlyCost-expectedWage)/hourlyCost < draw-0.2
}

// Activate brings size additional AVs online, clamped to the number
// currently inactive (spec.md §4.2 / §4.7 AV_fleet control).
func Activate(fleet []*model.Vehicle, size int) int {
	activated := 0
	for _, v := range fleet {
		if activated >= size {
			break
		}
		if v.Kind == model.KindAV && v.AV != nil && !v.AV.Active {
			v.AV.Active = true
			v.Status = model.StatusVacant
			activated++
		}
	}
	return activated
}

// Deactivate takes up to size vacant active AVs offline, in fleet order,
// and returns the number actually deactivated. The residual is not
// re-scheduled: a request beyond the vacant active AVs is dropped.
func Deactivate(fleet []*model.Vehicle, size int) int {
	deactivated := 0
	for _, v := range fleet {
		if deactivated >= size {
			break
		}
		if v.Kind == model.KindAV && v.AV != nil && v.AV.Active && v.Status == model.StatusVacant {
			v.AV.Active = false
			v.Status = model.StatusInactive
			deactivated++
		}
	}
	return deactivated
}

// VacantActive counts vehicles of kind that are both active (for AVs) and
// vacant, i.e. eligible for the matcher or for deactivation.
func VacantActive(fleet []*model.Vehicle, kind model.Kind) int {
	n := 0
	for _, v := range fleet {
		if v.Kind == kind && v.Vacant() {
			n++
		}
	}
	return n
}

// CompleteTrip applies the TripCompletion drop-off bookkeeping: vehicle
// utilisation running mean update (spec.md §4.2 / Supply.py's
// TripCompletion.trigger).
func CompleteTrip(v *model.Vehicle, occupiedTime, assignedToDropoffTime float64) {
	if assignedToDropoffTime <= 0 {
		return
	}
	ratio := occupiedTime / assignedToDropoffTime
	v.Utilisation = (float64(v.TripCount)*v.Utilisation + ratio) / float64(v.TripCount+1)
	v.TripCount++
}

// roundCents matches Demand.py's round(fare, 2) convention for money values.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
