package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"ridesim/config"
	"ridesim/control"
	"ridesim/demand"
	"ridesim/eventqueue"
	"ridesim/fleet"
	"ridesim/geo"
	"ridesim/logging"
	"ridesim/match"
	"ridesim/model"
	"ridesim/stats"
)

// Simulator is the driver of spec.md §4.1: it owns the event queue, the
// single seeded PRNG threaded through every stochastic draw (spec.md §5),
// the fleet and passenger pools, the running market aggregates, and the
// output sinks.
type Simulator struct {
	cfg   *config.Config
	geo   *geo.Graph
	queue *eventqueue.Queue
	rng   *rand.Rand

	fleet []*model.Vehicle
	byID  map[int64]*model.Vehicle

	waitingHV map[int64]*model.Passenger
	waitingAV map[int64]*model.Passenger
	allPass   map[int64]*model.Passenger
	nextPID   int64
	nextVID   int64

	fareHV, fareAV demand.FareParams
	controlParams  control.Parameters
	horizon        control.Horizon

	phiHV, phiAV float64

	market struct {
		HV model.MarketState
		AV model.MarketState
	}

	lastPassengerTime float64

	corrAVPickup, corrAVDropoff map[float64]float64
	corrHVPickup, corrHVDropoff map[float64]float64

	histDemand, histSupply []float64

	writers    *stats.Writers
	pg         *stats.PostgresMirror
	broadcast  *stats.Broadcaster

	monitor chan model.Snapshot // optional, drained by the SSE monitor (api package)
}

// SetPostgresMirror attaches an optional append-only assignment mirror
// (SPEC_FULL.md §B); pass nil to disable.
func (s *Simulator) SetPostgresMirror(pg *stats.PostgresMirror) { s.pg = pg }

// SetBroadcaster attaches an optional live Kafka event broadcaster
// (SPEC_FULL.md §B); pass nil to disable.
func (s *Simulator) SetBroadcaster(b *stats.Broadcaster) { s.broadcast = b }

// Monitor returns a channel of market snapshots emitted at every state
// update tick, for the optional HTTP/SSE monitor (api package). Run closes
// the channel once the simulation drains. Calling Monitor more than once
// panics; it is meant to be wired at most once per run.
func (s *Simulator) Monitor() <-chan model.Snapshot {
	if s.monitor != nil {
		panic("sim: Monitor already attached")
	}
	ch := make(chan model.Snapshot, 64)
	s.monitor = ch
	return ch
}

// New constructs a Simulator ready to be seeded with fleet and demand.
func New(cfg *config.Config, g *geo.Graph, writers *stats.Writers) *Simulator {
	return &Simulator{
		cfg:           cfg,
		geo:           g,
		queue:         eventqueue.New(),
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		byID:          map[int64]*model.Vehicle{},
		waitingHV:     map[int64]*model.Passenger{},
		waitingAV:     map[int64]*model.Passenger{},
		allPass:       map[int64]*model.Passenger{},
		nextPID:       1,
		nextVID:       1,
		fareHV:        demand.FareParams{BaseFare: 2.5, UnitFare: 36},
		fareAV:        demand.FareParams{BaseFare: 2.5, UnitFare: 36},
		controlParams: control.DefaultParameters(),
		horizon: control.Horizon{
			N: cfg.MPCHorizonSteps, Nc: cfg.MPCControlSteps,
			TauC: cfg.MPCIntervalSec, TauK: cfg.MPCStepSec,
		},
		phiHV: 1, phiAV: 1,
		corrAVPickup:  map[float64]float64{},
		corrAVDropoff: map[float64]float64{},
		corrHVPickup:  map[float64]float64{},
		corrHVDropoff: map[float64]float64{},
		writers:       writers,
	}
}

// SeedFleet installs the initial vehicle population (spec.md §4.2 initial
// deployment) and schedules each HV's deferred-entry decision at its
// preferred shift start (original_source/Supply.py's NewEV).
func (s *Simulator) SeedFleet(vehicles []*model.Vehicle) {
	var maxID int64
	for _, v := range vehicles {
		s.fleet = append(s.fleet, v)
		s.byID[v.ID] = v
		if v.ID > maxID {
			maxID = v.ID
		}
		if v.Kind == model.KindHV && v.Status == model.StatusInactive {
			s.queue.Push(&vehicleEntryEvent{
				t: v.HV.ShiftStart,
				arg: vehicleEntryArgs{
					neoclassical:  !v.HV.UsesIncomeRule,
					hourlyCost:    v.HV.HourlyCost,
					targetIncome:  v.HV.TargetIncome,
					vehicleID:     v.ID,
				},
				sim: s,
			})
		}
	}
	s.nextVID = maxID + 1
}

// SeedDemand converts loaded passenger records into scheduled
// newPassengerEvents (original_source/Demand.py's load_passengers).
func (s *Simulator) SeedDemand(records []demand.Record) {
	for _, r := range records {
		if r.PickupUnixSec > s.lastPassengerTime {
			s.lastPassengerTime = r.PickupUnixSec
		}
		s.queue.Push(&newPassengerEvent{
			t: r.PickupUnixSec,
			rec: passengerArgs{
				origin: r.Origin, destination: r.Destination,
				tripDistance: r.TripDistance, tripDuration: r.TripDuration, patience: r.Patience,
				uConst: r.UConst, uFare: r.UFare, vot: r.VoT,
			},
			sim: s,
		})
	}
}

// ScheduleRecurring installs the first Assignment, StateUpdate, and MPC
// ticks; each re-schedules itself only while its next tick falls no later
// than one second after the last passenger arrival, so the final tick can
// precede that arrival (spec.md §4.1's drain-phase semantics).
func (s *Simulator) ScheduleRecurring() {
	if s.cfg.AssignIntervalSec > 0 {
		s.queue.Push(&assignmentEvent{t: 0, sim: s})
	}
	s.queue.Push(&stateUpdateEvent{t: 0, sim: s})
	if s.cfg.MPCIntervalSec > 0 {
		s.queue.Push(&mpcEvent{t: s.cfg.MPCIntervalSec, sim: s})
	}
}

// Run drains the event queue in strict (time, priority, sequence) order
// (spec.md §4.1), fatally aborting on an out-of-order pop — the driver
// never tolerates an event whose time regresses the simulation clock.
func (s *Simulator) Run() error {
	var clock float64
	for {
		ev := s.queue.Pop()
		if ev == nil {
			break
		}
		if ev.Time() < clock-1e-6 {
			logging.Fatal("event time regressed simulation clock", "event_time", ev.Time(), "clock", clock)
		}
		clock = ev.Time()
		if err := ev.Trigger(); err != nil {
			return fmt.Errorf("trigger event at t=%.2f: %w", clock, err)
		}
	}
	s.finalise(clock)
	return nil
}

// finalise expires every passenger still waiting (recorded at the drain
// time t, in id order) and forces every vehicle still mid-trip to complete,
// matching original_source/Supply.py's TripCompletion(end=True) forced-exit path.
func (s *Simulator) finalise(t float64) {
	for _, waiting := range []map[int64]*model.Passenger{s.waitingHV, s.waitingAV} {
		ids := make([]int64, 0, len(waiting))
		for id := range waiting {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			delete(waiting, id)
			if s.writers != nil {
				s.writers.RecordExpiration(id, t)
			}
		}
	}
	for _, v := range s.fleet {
		if v.Status == model.StatusOccupied || v.Status == model.StatusAssigned {
			s.completeTrip(t, v.ID, true, true)
		}
	}
	if s.writers != nil {
		s.writers.Flush()
	}
	if s.monitor != nil {
		close(s.monitor)
	}
}

func (s *Simulator) updatePhi() {
	s.phiHV = demand.ComputePhi(len(s.waitingHV), fleet.VacantActive(s.fleet, model.KindHV))
	s.phiAV = demand.ComputePhi(len(s.waitingAV), fleet.VacantActive(s.fleet, model.KindAV))
}

func (s *Simulator) spawnPassenger(t float64, rec passengerArgs) error {
	s.updatePhi()

	p := &model.Passenger{
		ID: s.nextPID, RequestTime: t,
		Origin: rec.origin, Destination: rec.destination,
		TripDistance: rec.tripDistance, TripDuration: rec.tripDuration,
		Patience: rec.patience, UConst: rec.uConst, UFare: rec.uFare / 60, VoT: rec.vot / 3600,
		ExpiresAt: t + rec.patience,
	}
	s.nextPID++

	waitHV := demand.MinWaitTime(s.geo, hvFleet(s.fleet), rec.origin, s.market.HV.AvgPickupTime)
	waitAV := demand.MinWaitTime(s.geo, avFleet(s.fleet), rec.origin, s.market.AV.AvgPickupTime)

	hvFare := demand.Fare(s.fareHV, p.TripDuration)
	avFare := demand.Fare(s.fareAV, p.TripDuration)

	hvGC := demand.GeneralisedCost(p.UConst, p.UFare, p.VoT, hvFare, waitHV, s.phiHV)
	avGC := demand.GeneralisedCost(p.UConst, p.UFare, p.VoT, avFare, waitAV, s.phiAV)

	p.Mode = demand.ChooseMode(hvGC, avGC, s.controlParams.OthersGC, s.rng.Float64())

	switch p.Mode {
	case model.ModeHV:
		p.Fare = hvFare
		s.waitingHV[p.ID] = p
		s.market.HV.PW = len(s.waitingHV)
	case model.ModeAV:
		p.Fare = avFare
		s.waitingAV[p.ID] = p
		s.market.AV.PW = len(s.waitingAV)
	}
	s.allPass[p.ID] = p

	if s.writers != nil {
		s.writers.RecordPassenger(p.ID, p.RequestTime, p.TripDistance, p.TripDuration, p.VoT, p.Fare, modeName(p.Mode))
	}
	return nil
}

func modeName(m model.Mode) string {
	switch m {
	case model.ModeHV:
		return "HV"
	case model.ModeAV:
		return "AV"
	default:
		return "OUTSIDE"
	}
}

func hvFleet(fleet_ []*model.Vehicle) []*model.Vehicle { return filterKindVacant(fleet_, model.KindHV) }
func avFleet(fleet_ []*model.Vehicle) []*model.Vehicle { return filterKindVacant(fleet_, model.KindAV) }

func filterKindVacant(fleetList []*model.Vehicle, kind model.Kind) []*model.Vehicle {
	out := make([]*model.Vehicle, 0)
	for _, v := range fleetList {
		if v.Kind == kind && v.Vacant() {
			out = append(out, v)
		}
	}
	return out
}

func (s *Simulator) processEntry(t float64, arg vehicleEntryArgs) error {
	v := s.byID[arg.vehicleID]
	if v == nil {
		return nil
	}
	expectedWage := s.controlParams.HVWage * v.Utilisation
	if fleet.ShouldEnter(arg.neoclassical, arg.hourlyCost, expectedWage) {
		v.Status = model.StatusVacant
		if s.writers != nil {
			s.writers.RecordVehicle(v.ID, "HV", t, 0, arg.neoclassical, arg.hourlyCost, arg.targetIncome, 0, true)
		}
		return nil
	}
	if fleet.ShouldRetryEntry(t, s.lastPassengerTime, arg.hourlyCost, expectedWage, s.rng.Float64()) {
		s.queue.Push(&vehicleEntryEvent{t: t + 300, arg: arg, sim: s})
	}
	return nil
}

func (s *Simulator) runAssignment(t float64) {
	s.expirePassengers(t, s.waitingHV)
	s.expirePassengers(t, s.waitingAV)

	s.matchKind(t, model.KindHV, s.waitingHV)
	s.matchKind(t, model.KindAV, s.waitingAV)
}

// expirePassengers drops unmatched passengers past their patience window.
// Expirations are emitted in id order so the output stream is
// reproducible across runs despite Go's randomized map iteration
// (spec.md §8).
func (s *Simulator) expirePassengers(t float64, waiting map[int64]*model.Passenger) {
	expired := make([]*model.Passenger, 0)
	for _, p := range waiting {
		if p.Expired(t) {
			expired = append(expired, p)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	for _, p := range expired {
		delete(waiting, p.ID)
		if s.writers != nil {
			s.writers.RecordExpiration(p.ID, p.ExpiresAt)
		}
		if s.broadcast != nil {
			s.broadcast.Publish(stats.MarketEvent{TraceID: uuid.NewString(), Time: t, Type: stats.EventExpiration, Payload: stats.ExpirationPayload{PassengerID: p.ID, ExpiredT: p.ExpiresAt}})
		}
	}
}

func (s *Simulator) matchKind(t float64, kind model.Kind, waiting map[int64]*model.Passenger) {
	vehicles := filterKindVacant(s.fleet, kind)
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })
	passengers := make([]*model.Passenger, 0, len(waiting))
	for _, p := range waiting {
		passengers = append(passengers, p)
	}
	// Sorting by id gives the Hungarian solver a deterministic column
	// order so its (vehicle-id, passenger-id) tie-break (spec.md §4.3)
	// is reproducible, independent of map iteration order.
	sort.Slice(passengers, func(i, j int) bool { return passengers[i].ID < passengers[j].ID })
	results := match.AssignKind(s.geo, t, vehicles, passengers)
	for _, r := range results {
		r.Vehicle.Status = model.StatusAssigned
		r.Vehicle.PassengerID = r.Passenger.ID
		r.Vehicle.DispatchTime = r.DispatchTime
		r.Vehicle.DeliveryTime = r.DeliveryTime
		r.Vehicle.DestLoc = r.Passenger.Destination
		r.Passenger.Matched = true
		r.Passenger.VehicleID = r.Vehicle.ID
		r.Passenger.AssignedTime = t

		delete(waiting, r.Passenger.ID)

		if kind == model.KindHV {
			s.corrHVPickup[r.DispatchTime]++
			s.corrHVDropoff[r.DeliveryTime]++
		} else {
			s.corrAVPickup[r.DispatchTime]++
			s.corrAVDropoff[r.DeliveryTime]++
		}

		s.queue.Push(&occupancyEvent{t: r.DispatchTime, vID: r.Vehicle.ID, sim: s})
		s.queue.Push(&tripCompletionEvent{t: r.DeliveryTime, vID: r.Vehicle.ID, dropOff: true, sim: s})

		if s.writers != nil {
			s.writers.RecordAssignment(r.Vehicle.ID, r.Passenger.ID, kind.String(), t, r.DispatchTime, r.DeliveryTime, r.DispatchDist)
		}
		if s.pg != nil {
			if err := s.pg.InsertAssignment(context.Background(), r.Vehicle.ID, r.Passenger.ID, kind.String(), t, r.DispatchTime, r.DeliveryTime, r.DispatchDist); err != nil {
				logging.Logger.Warn("postgres mirror insert failed", "err", err)
			}
		}
		if s.broadcast != nil {
			s.broadcast.Publish(stats.MarketEvent{TraceID: uuid.NewString(), Time: t, Type: stats.EventAssignment, Payload: stats.AssignmentPayload{
				VehicleID: r.Vehicle.ID, PassengerID: r.Passenger.ID, Kind: kind.String(), DispatchT: r.DispatchTime, DeliveryT: r.DeliveryTime,
			}})
		}
	}
	if kind == model.KindHV {
		s.market.HV.PW = len(waiting)
	} else {
		s.market.AV.PW = len(waiting)
	}
}

// beginOccupied transitions a matched vehicle from assigned to occupied at
// its meeting time. Guarded on Status so a vehicle reassigned or retired
// between the match tick and the meeting time (should not happen in the
// current model, but costs nothing to guard) doesn't get clobbered back
// to occupied.
func (s *Simulator) beginOccupied(vID int64) {
	v := s.byID[vID]
	if v == nil || v.Status != model.StatusAssigned {
		return
	}
	v.Status = model.StatusOccupied
}

func (s *Simulator) completeTrip(t float64, vID int64, dropOff, end bool) error {
	v := s.byID[vID]
	if v == nil {
		return nil
	}
	if !dropOff {
		v.Status = model.StatusVacant
		return nil
	}

	occupiedTime := v.DeliveryTime - v.DispatchTime
	assignedSpan := t - v.DispatchTime
	if p := s.allPass[v.PassengerID]; p != nil {
		assignedSpan = t - p.AssignedTime
	}
	fleet.CompleteTrip(v, occupiedTime, assignedSpan)
	if s.writers != nil {
		s.writers.RecordUtilisation(t, v.ID, v.Utilisation)
	}
	if s.broadcast != nil {
		s.broadcast.Publish(stats.MarketEvent{TraceID: uuid.NewString(), Time: t, Type: stats.EventDropoff, Payload: stats.DropoffPayload{VehicleID: v.ID, Utilisation: v.Utilisation}})
	}
	v.Loc = v.DestLoc
	v.Status = model.StatusVacant

	if v.Kind == model.KindHV {
		wage := s.controlParams.HVWage * v.Utilisation
		exit := fleet.DecideExit(v, t, v.HV.HourlyCost, wage, s.rng.Float64(), end)
		if exit {
			v.Status = model.StatusInactive
			if s.writers != nil {
				s.writers.RecordVehicle(v.ID, "HV", 0, t, v.HV.UsesIncomeRule, v.HV.HourlyCost, v.HV.TargetIncome, v.HV.EarnedToday, false)
			}
		}
	}
	return nil
}

func (s *Simulator) updateMarketState(t float64) {
	s.market.HV.NV = fleet.VacantActive(s.fleet, model.KindHV)
	s.market.AV.NV = fleet.VacantActive(s.fleet, model.KindAV)
	na, no := countAssignedOccupied(s.fleet, model.KindHV)
	s.market.HV.NA, s.market.HV.NO = na, no
	na, no = countAssignedOccupied(s.fleet, model.KindAV)
	s.market.AV.NA, s.market.AV.NO = na, no

	if s.monitor != nil {
		select {
		case s.monitor <- s.Snapshot(t):
		default: // slow consumer: drop rather than block the simulation clock
		}
	}

	const stateUpdateIntervalSec = 60
	if t+stateUpdateIntervalSec <= s.lastPassengerTime+1 {
		s.queue.Push(&stateUpdateEvent{t: t + stateUpdateIntervalSec, sim: s})
	}
}

func countAssignedOccupied(fleetList []*model.Vehicle, kind model.Kind) (assigned, occupied int) {
	for _, v := range fleetList {
		if v.Kind != kind {
			continue
		}
		switch v.Status {
		case model.StatusAssigned:
			assigned++
		case model.StatusOccupied:
			occupied++
		}
	}
	return
}

func (s *Simulator) runMPC(t float64) {
	pruneStale(s.corrAVPickup, t)
	pruneStale(s.corrAVDropoff, t)
	pruneStale(s.corrHVPickup, t)
	pruneStale(s.corrHVDropoff, t)

	av := control.KindState{PW: float64(s.market.AV.PW), NV: float64(s.market.AV.NV), NA: float64(s.market.AV.NA), NO: float64(s.market.AV.NO)}
	hv := control.KindState{PW: float64(s.market.HV.PW), NV: float64(s.market.HV.NV), NA: float64(s.market.HV.NA), NO: float64(s.market.HV.NO)}

	mkt := control.Market{
		AVTa: s.market.AV.AvgPickupTime, AVTo: s.market.AV.AvgDropoffTime,
		HVTa: s.market.HV.AvgPickupTime, HVTo: s.market.HV.AvgDropoffTime,
		AVFare: s.fareAV.UnitFare, HVFare: s.fareHV.UnitFare,
		HVTotal: float64(countKind(s.fleet, model.KindHV)),
	}

	forecast := control.Forecast{
		TotalDemand: s.histDemand,
		HVSupply:    s.histSupply,
	}
	corr := control.Corrections{
		AVPickup: s.corrAVPickup, AVDropoff: s.corrAVDropoff,
		HVPickup: s.corrHVPickup, HVDropoff: s.corrHVDropoff,
	}

	c := &control.Controller{Params: s.controlParams}
	avVacant := float64(s.market.AV.NV)
	headroom := math.Max(0, 200-float64(countKind(s.fleet, model.KindAV)))
	res := c.Solve(av, hv, mkt, s.horizon, forecast, corr, t, avVacant, headroom)

	if !res.Solved {
		logging.Logger.Warn("mpc solve failed, retaining previous controls", "t", t)
		if s.writers != nil {
			s.writers.RecordControl(t, s.fareAV.UnitFare, s.fareHV.UnitFare, 0)
		}
		return
	}

	s.fareAV.UnitFare = res.AVFare
	s.fareHV.UnitFare = res.HVFare
	if res.AVFleet > 0 {
		fleet.Activate(s.fleet, res.AVFleet)
	} else if res.AVFleet < 0 {
		fleet.Deactivate(s.fleet, -res.AVFleet)
	}

	if s.writers != nil {
		s.writers.RecordPrediction(t, res.Objective, res.AVFare, res.HVFare, res.AVFleet)
		s.writers.RecordControl(t, res.AVFare, res.HVFare, res.AVFleet)
	}
	if s.broadcast != nil {
		s.broadcast.Publish(stats.MarketEvent{TraceID: uuid.NewString(), Time: t, Type: stats.EventControl, Payload: stats.ControlPayload{AVFare: res.AVFare, HVFare: res.HVFare, AVFleet: res.AVFleet}})
	}
}

// Snapshot reports the current market aggregates for the monitor endpoint
// (api package), read-only and safe to call between event triggers.
func (s *Simulator) Snapshot(t float64) model.Snapshot {
	return model.Snapshot{Time: t, HV: s.market.HV, AV: s.market.AV}
}

func pruneStale(m map[float64]float64, t float64) {
	for k := range m {
		if k < t {
			delete(m, k)
		}
	}
}

func countKind(fleetList []*model.Vehicle, kind model.Kind) int {
	n := 0
	for _, v := range fleetList {
		if v.Kind == kind {
			n++
		}
	}
	return n
}
