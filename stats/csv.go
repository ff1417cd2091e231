// Package stats implements the append-only statistics sinks of spec.md §6:
// CSV files for each of the output tables original_source/Control.py's
// write_results produces (vehicle_data, passenger_data, expiration_data,
// assignment_data, utilisation_data, prediction_data, control_data), plus
// optional Postgres and Kafka mirrors (SPEC_FULL.md §B).
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ridesim/logging"
)

// Sink is an append-only CSV writer for one output table.
type Sink struct {
	f *os.File
	w *csv.Writer
}

func newSink(dir, name string, header []string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return &Sink{f: f, w: w}, nil
}

func (s *Sink) write(row []string) {
	if err := s.w.Write(row); err != nil {
		logging.Logger.Warn("csv write failed", "err", err)
	}
}

func (s *Sink) Close() error {
	s.w.Flush()
	return s.f.Close()
}

// Writers bundles the seven output sinks for one simulation run.
type Writers struct {
	Vehicle     *Sink
	Passenger   *Sink
	Expiration  *Sink
	Assignment  *Sink
	Utilisation *Sink
	Prediction  *Sink
	Control     *Sink
}

// NewWriters creates the append-only output sinks under dir, matching the
// column headers of original_source/Control.py's write_results.
func NewWriters(dir string) (*Writers, error) {
	var err error
	w := &Writers{}
	if w.Vehicle, err = newSink(dir, "vehicle_data", []string{
		"v_id", "kind", "entrance_time", "exit_time", "neoclassical", "hourly_cost", "target_income", "income", "active",
	}); err != nil {
		return nil, err
	}
	if w.Passenger, err = newSink(dir, "passenger_data", []string{
		"p_id", "request_t", "trip_distance", "trip_duration", "vot", "fare", "mode",
	}); err != nil {
		return nil, err
	}
	if w.Expiration, err = newSink(dir, "expiration_data", []string{"p_id", "expired_t"}); err != nil {
		return nil, err
	}
	if w.Assignment, err = newSink(dir, "assignment_data", []string{
		"v_id", "p_id", "kind", "assignment_t", "dispatch_t", "delivery_t", "dispatch_d",
	}); err != nil {
		return nil, err
	}
	if w.Utilisation, err = newSink(dir, "utilisation_data", []string{"t", "v_id", "utilisation"}); err != nil {
		return nil, err
	}
	if w.Prediction, err = newSink(dir, "prediction_data", []string{
		"t", "objective", "av_fare", "hv_fare", "av_fleet_delta",
	}); err != nil {
		return nil, err
	}
	if w.Control, err = newSink(dir, "control_data", []string{"t", "av_fare", "hv_fare", "av_fleet"}); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writers) Flush() {
	for _, s := range []*Sink{w.Vehicle, w.Passenger, w.Expiration, w.Assignment, w.Utilisation, w.Prediction, w.Control} {
		s.w.Flush()
	}
}

func (w *Writers) Close() error {
	for _, s := range []*Sink{w.Vehicle, w.Passenger, w.Expiration, w.Assignment, w.Utilisation, w.Prediction, w.Control} {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(v float64) string  { return strconv.FormatFloat(v, 'f', -1, 64) }
func i(v int64) string    { return strconv.FormatInt(v, 10) }
func b(v bool) string     { return strconv.FormatBool(v) }

func (w *Writers) RecordVehicle(vID int64, kind string, entranceT, exitT float64, neoclassical bool, hourlyCost, targetIncome, income float64, active bool) {
	w.Vehicle.write([]string{i(vID), kind, f(entranceT), f(exitT), b(neoclassical), f(hourlyCost), f(targetIncome), f(income), b(active)})
}

func (w *Writers) RecordPassenger(pID int64, requestT, tripDistance, tripDuration, vot, fare float64, mode string) {
	w.Passenger.write([]string{i(pID), f(requestT), f(tripDistance), f(tripDuration), f(vot), f(fare), mode})
}

func (w *Writers) RecordExpiration(pID int64, expiredT float64) {
	w.Expiration.write([]string{i(pID), f(expiredT)})
}

func (w *Writers) RecordAssignment(vID, pID int64, kind string, assignmentT, dispatchT, deliveryT, dispatchD float64) {
	w.Assignment.write([]string{i(vID), i(pID), kind, f(assignmentT), f(dispatchT), f(deliveryT), f(dispatchD)})
}

func (w *Writers) RecordUtilisation(t float64, vID int64, utilisation float64) {
	w.Utilisation.write([]string{f(t), i(vID), f(utilisation)})
}

func (w *Writers) RecordPrediction(t, objective, avFare, hvFare float64, avFleetDelta int) {
	w.Prediction.write([]string{f(t), f(objective), f(avFare), f(hvFare), strconv.Itoa(avFleetDelta)})
}

func (w *Writers) RecordControl(t, avFare, hvFare float64, avFleet int) {
	w.Control.write([]string{f(t), f(avFare), f(hvFare), strconv.Itoa(avFleet)})
}
