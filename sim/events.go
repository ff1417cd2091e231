package sim

import (
	"ridesim/eventqueue"
	"ridesim/geo"
)

// phiUpdateEvent recomputes the ETA-ratio phi ahead of the next mode-choice
// evaluation (spec.md §4.5), mirroring the distinct update_phi event type
// of original_source/Simulation.py.
type phiUpdateEvent struct {
	t   float64
	sim *Simulator
}

func (e *phiUpdateEvent) Time() float64                 { return e.t }
func (e *phiUpdateEvent) Priority() eventqueue.Priority { return eventqueue.PriorityPhiUpdate }
func (e *phiUpdateEvent) Trigger() error                { e.sim.updatePhi(); return nil }

// occupancyEvent fires at a matched vehicle's meeting time (spec.md §4.2/
// §4.3) and transitions it from assigned to occupied, which is what lets
// countAssignedOccupied and the MPC state vector's no_k see a nonzero
// occupied count. Grounded on original_source/Management.py:289's
// UpdateOccupied.
type occupancyEvent struct {
	t   float64
	vID int64
	sim *Simulator
}

func (e *occupancyEvent) Time() float64                 { return e.t }
func (e *occupancyEvent) Priority() eventqueue.Priority { return eventqueue.PriorityLifecycle }
func (e *occupancyEvent) Trigger() error                { e.sim.beginOccupied(e.vID); return nil }

// passengerArgs is the fixed-at-request-time passenger record parsed from
// the input file (original_source/Demand.py's NewPassenger constructor
// arguments).
type passengerArgs struct {
	origin, destination                    geo.Location
	tripDistance, tripDuration, patience    float64
	uConst, uFare, vot                     float64
}

// newPassengerEvent materialises one passenger request, runs mode choice,
// and — unless the passenger chooses the outside option — enqueues it as
// waiting for its chosen kind.
type newPassengerEvent struct {
	t   float64
	rec passengerArgs
	sim *Simulator
}

func (e *newPassengerEvent) Time() float64                 { return e.t }
func (e *newPassengerEvent) Priority() eventqueue.Priority { return eventqueue.PriorityNewPassenger }
func (e *newPassengerEvent) Trigger() error                { return e.sim.spawnPassenger(e.t, e.rec) }

// vehicleEntryArgs carries the HV candidate parameters evaluated by
// processEntry (original_source/Supply.py's NewEV).
type vehicleEntryArgs struct {
	neoclassical bool
	hourlyCost   float64
	targetIncome float64
	vehicleID    int64
}

type vehicleEntryEvent struct {
	t   float64
	arg vehicleEntryArgs
	sim *Simulator
}

func (e *vehicleEntryEvent) Time() float64                 { return e.t }
func (e *vehicleEntryEvent) Priority() eventqueue.Priority { return eventqueue.PriorityLifecycle }
func (e *vehicleEntryEvent) Trigger() error                { return e.sim.processEntry(e.t, e.arg) }

// tripCompletionEvent is the drop-off/reposition-complete event
// (original_source/Supply.py's TripCompletion): on drop-off it runs
// utilisation bookkeeping and the HV decide-exit contract, or simply
// re-vacates the vehicle when it is not a passenger drop-off.
type tripCompletionEvent struct {
	t       float64
	vID     int64
	dropOff bool
	end     bool
	sim     *Simulator
}

func (e *tripCompletionEvent) Time() float64                 { return e.t }
func (e *tripCompletionEvent) Priority() eventqueue.Priority { return eventqueue.PriorityTripCompletion }
func (e *tripCompletionEvent) Trigger() error                { return e.sim.completeTrip(e.t, e.vID, e.dropOff, e.end) }

// assignmentEvent runs one bipartite matcher tick and re-schedules itself
// at the configured interval (original_source/Interaction.py's Assign).
type assignmentEvent struct {
	t   float64
	sim *Simulator
}

func (e *assignmentEvent) Time() float64                 { return e.t }
func (e *assignmentEvent) Priority() eventqueue.Priority { return eventqueue.PriorityAssignment }
func (e *assignmentEvent) Trigger() error {
	e.sim.runAssignment(e.t)
	if e.sim.cfg.AssignIntervalSec > 0 && e.t+e.sim.cfg.AssignIntervalSec <= e.sim.lastPassengerTime+1 {
		e.sim.queue.Push(&assignmentEvent{t: e.t + e.sim.cfg.AssignIntervalSec, sim: e.sim})
	}
	return nil
}

// stateUpdateEvent recomputes the MarketState aggregates consumed by the
// MPC controller (spec.md §4.6 / original_source/Management.py's
// UpdateStates).
type stateUpdateEvent struct {
	t   float64
	sim *Simulator
}

func (e *stateUpdateEvent) Time() float64                 { return e.t }
func (e *stateUpdateEvent) Priority() eventqueue.Priority { return eventqueue.PriorityStateUpdate }
func (e *stateUpdateEvent) Trigger() error { e.sim.updateMarketState(e.t); return nil }

// mpcEvent runs one receding-horizon controller solve and applies the
// immediate control values (spec.md §4.7 / original_source/Control.py's
// MPC.trigger).
type mpcEvent struct {
	t   float64
	sim *Simulator
}

func (e *mpcEvent) Time() float64                 { return e.t }
func (e *mpcEvent) Priority() eventqueue.Priority { return eventqueue.PriorityMPC }
func (e *mpcEvent) Trigger() error {
	e.sim.runMPC(e.t)
	if e.sim.cfg.MPCIntervalSec > 0 && e.t+e.sim.cfg.MPCIntervalSec <= e.sim.lastPassengerTime+1 {
		e.sim.queue.Push(&mpcEvent{t: e.t + e.sim.cfg.MPCIntervalSec, sim: e.sim})
	}
	return nil
}
