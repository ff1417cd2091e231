// Package demand loads passenger requests and implements the phi updater
// and mode-choice/fare computation of spec.md §4.4-§4.5, grounded on
// original_source/Demand.py and Control.py's compute_phi.
package demand

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"ridesim/geo"
	"ridesim/model"
)

// requiredInjectedColumns are the derived columns validate_passengers
// computes once and persists (SPEC_FULL.md §C.1).
var requiredInjectedColumns = []string{
	"patience", "trip_distance", "trip_duration", "u_const", "u_fare", "vot",
}

// Record is a single row of the (possibly enriched) passenger file.
type Record struct {
	PickupUnixSec float64
	Origin        geo.Location
	Destination   geo.Location
	Patience      float64
	TripDistance  float64
	TripDuration  float64
	UConst        float64
	UFare         float64
	VoT           float64
}

// ValidateAndInject reads header to check whether the derived columns of
// SPEC_FULL.md §C.1 are present, reporting which are missing. The caller is
// responsible for computing them (cmd/ridesim writes an enriched temporary
// copy; the input file is not rewritten) — this keeps the package free of
// file-rewrite side effects during normal loads.
func ValidateAndInject(header []string) (missing []string) {
	have := map[string]bool{}
	for _, h := range header {
		have[normalizeHeader(h)] = true
	}
	for _, col := range requiredInjectedColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func normalizeHeader(h string) string {
	out := make([]rune, 0, len(h))
	for _, r := range h {
		if r >= 'A' && r <= 'Z' {
			r += 32
		}
		out = append(out, r)
	}
	return string(out)
}

// InjectAttributes computes the derived columns for rows missing them,
// mirroring Demand.py's validate_passengers sampling: patience ~
// truncated-normal(60, 6^2) in [30,90]; U_const ~ truncated-normal(0,1) in
// [-1,1]; U_fare ~ truncated-normal(3.2, 0.2^2) in [3,3.4]; VoT ~
// truncated-normal(32, 3.2^2) in [22,38], rounded to cents.
func InjectAttributes(rng *rand.Rand, origin, destination geo.Location, g *geo.Graph) (patience, tripDistance, tripDuration, uConst, uFare, vot float64) {
	patience = truncNorm(rng, 60, 6, 30, 90)
	uConst = truncNorm(rng, 0, 1, -1, 1)
	uFare = truncNorm(rng, 3.2, 0.2, 3.0, 3.4)
	vot = math.Round(truncNorm(rng, 32, 3.2, 22, 38)*100) / 100
	tripDistance = geo.Distance(g, origin, destination)
	tripDuration = geo.Duration(g, origin, destination)
	return
}

// truncNorm rejection-samples a Normal(mean, std) draw bounded to [lo, hi].
func truncNorm(rng *rand.Rand, mean, std, lo, hi float64) float64 {
	for i := 0; i < 100; i++ {
		v := rng.NormFloat64()*std + mean
		if v >= lo && v <= hi {
			return v
		}
	}
	return math.Max(lo, math.Min(hi, mean))
}

// Preprocess reads a raw passenger CSV and writes an augmented copy with the
// derived columns of requiredInjectedColumns appended, when missing,
// mirroring Demand.py's validate_passengers persisting its computed columns
// back to disk before every run. If none are missing, preprocess copies the
// file through unchanged.
func Preprocess(r io.Reader, w io.Writer, g *geo.Graph, rng *rand.Rand) error {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("decode passenger file: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	missing := ValidateAndInject(header)
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if len(missing) == 0 {
		return cw.WriteAll(rows)
	}

	idx := columnIndex(header)
	outHeader := append(append([]string{}, header...), missing...)
	if err := cw.Write(outHeader); err != nil {
		return err
	}
	for _, row := range rows[1:] {
		origin := geo.Location{}
		destination := geo.Location{}
		if v, ok := idx["o_source"]; ok {
			origin.Source, _ = strconv.ParseInt(row[v], 10, 64)
		}
		if v, ok := idx["o_target"]; ok {
			origin.Target, _ = strconv.ParseInt(row[v], 10, 64)
		}
		if v, ok := idx["o_loc"]; ok {
			origin.Offset, _ = strconv.ParseFloat(row[v], 64)
		}
		if v, ok := idx["d_source"]; ok {
			destination.Source, _ = strconv.ParseInt(row[v], 10, 64)
		}
		if v, ok := idx["d_target"]; ok {
			destination.Target, _ = strconv.ParseInt(row[v], 10, 64)
		}
		if v, ok := idx["d_loc"]; ok {
			destination.Offset, _ = strconv.ParseFloat(row[v], 64)
		}
		patience, tripDistance, tripDuration, uConst, uFare, vot := InjectAttributes(rng, origin, destination, g)

		derived := map[string]float64{
			"patience": patience, "trip_distance": tripDistance, "trip_duration": tripDuration,
			"u_const": uConst, "u_fare": uFare, "vot": vot,
		}
		outRow := append([]string{}, row...)
		for _, col := range missing {
			outRow = append(outRow, strconv.FormatFloat(derived[col], 'f', -1, 64))
		}
		if err := cw.Write(outRow); err != nil {
			return err
		}
	}
	return nil
}

// PeriodMultiplier scales demand by time-of-day bucket, approximating the
// period-of-day demand curve original_source/Demand.py samples passengers
// against: early off-peak, morning peak, late morning, mid-day, evening
// peak, late evening, each a 4-hour slice of the day.
var PeriodMultiplier = map[int]float64{
	1: 0.3, // 00:00-04:00 very early off-peak
	2: 1.6, // 04:00-08:00 morning peak
	3: 0.9, // 08:00-12:00 late morning
	4: 0.8, // 12:00-16:00 mid-day
	5: 1.4, // 16:00-20:00 evening peak
	6: 0.5, // 20:00-24:00 late evening
}

// period buckets pickupUnixSec (already shifted into [0, 24h)) into one of
// the six 4-hour periods of PeriodMultiplier.
func period(pickupUnixSec float64) int {
	hour := math.Mod(pickupUnixSec/3600, 24)
	if hour < 0 {
		hour += 24
	}
	return int(hour/4) + 1
}

// LoadRecords parses a passenger CSV (already validated/injected) into
// Records, applying the demand time-shift and window truncation of
// SPEC_FULL.md §C.2, the fraction subsample of spec.md §6, and the
// time-of-day demand weighting of PeriodMultiplier.
func LoadRecords(r io.Reader, fraction, windowHours, shiftHours float64, rng *rand.Rand) ([]Record, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode passenger file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx := columnIndex(rows[0])
	var minTime float64 = math.Inf(1)
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		t, err := strconv.ParseFloat(row[idx["pickup_unix_sec"]], 64)
		if err != nil {
			return nil, fmt.Errorf("decode passenger file: bad pickup time %q: %w", row[idx["pickup_unix_sec"]], err)
		}
		if t < minTime {
			minTime = t
		}
	}

	for _, row := range rows[1:] {
		rec, err := parseRecord(row, idx)
		if err != nil {
			return nil, err
		}
		rec.PickupUnixSec -= minTime
		rec.PickupUnixSec = math.Mod(rec.PickupUnixSec+shiftHours*3600, 24*3600)
		if rec.PickupUnixSec > windowHours*3600 {
			continue
		}
		if fraction < 1 {
			keep := fraction * PeriodMultiplier[period(rec.PickupUnixSec)]
			if keep > 1 {
				keep = 1
			}
			if rng.Float64() > keep {
				continue
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string) map[string]int {
	idx := map[string]int{}
	for i, h := range header {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func parseRecord(row []string, idx map[string]int) (Record, error) {
	get := func(col string) (float64, error) {
		i, ok := idx[col]
		if !ok {
			return 0, fmt.Errorf("decode passenger file: missing column %q", col)
		}
		return strconv.ParseFloat(row[i], 64)
	}
	geti := func(col string) (int64, error) {
		i, ok := idx[col]
		if !ok {
			return 0, fmt.Errorf("decode passenger file: missing column %q", col)
		}
		return strconv.ParseInt(row[i], 10, 64)
	}

	var rec Record
	var err error
	if rec.PickupUnixSec, err = get("pickup_unix_sec"); err != nil {
		return rec, err
	}
	if rec.Origin.Source, err = geti("o_source"); err != nil {
		return rec, err
	}
	if rec.Origin.Target, err = geti("o_target"); err != nil {
		return rec, err
	}
	if rec.Origin.Offset, err = get("o_loc"); err != nil {
		return rec, err
	}
	if rec.Destination.Source, err = geti("d_source"); err != nil {
		return rec, err
	}
	if rec.Destination.Target, err = geti("d_target"); err != nil {
		return rec, err
	}
	if rec.Destination.Offset, err = get("d_loc"); err != nil {
		return rec, err
	}
	if rec.Patience, err = get("patience"); err != nil {
		return rec, err
	}
	if rec.TripDistance, err = get("trip_distance"); err != nil {
		return rec, err
	}
	if rec.TripDuration, err = get("trip_duration"); err != nil {
		return rec, err
	}
	if rec.UConst, err = get("u_const"); err != nil {
		return rec, err
	}
	if rec.UFare, err = get("u_fare"); err != nil {
		return rec, err
	}
	if rec.VoT, err = get("vot"); err != nil {
		return rec, err
	}
	return rec, nil
}

// ComputePhi is the ETA-ratio power-law form of Control.py's compute_phi,
// fixed by the Open Question decision recorded in SPEC_FULL.md: phi =
// max(1, exp(0.185472) * min(nP,nV)^0.199586 * max(nP,nV)^-0.122311).
func ComputePhi(waiting, vacant int) float64 {
	if waiting <= 0 || vacant <= 0 {
		return 1.0
	}
	less := float64(waiting)
	more := float64(vacant)
	if less > more {
		less, more = more, less
	}
	phi := math.Exp(0.185472) * math.Pow(less, 0.199586) * math.Pow(more, -0.122311)
	return math.Max(1.0, phi)
}

// MinWaitTime returns the shortest duration from any vehicle in fleet to
// origin, or defaultWait if fleet is empty (Demand.py's Passenger.min_wait_time).
func MinWaitTime(g *geo.Graph, fleet []*model.Vehicle, origin geo.Location, defaultWait float64) float64 {
	best := math.Inf(1)
	for _, v := range fleet {
		d := geo.Duration(g, v.Loc, origin)
		if d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return defaultWait
	}
	return best
}

// FareParams are the linear fare-schedule coefficients of Control.py's
// Parameters class, one instance per kind.
type FareParams struct {
	BaseFare float64
	UnitFare float64
}

// Fare computes the linear fare-by-duration schedule
// (Demand.py: round(baseFare + unitFare * tripDuration/3600, 2)).
func Fare(p FareParams, tripDurationSec float64) float64 {
	return math.Round((p.BaseFare+p.UnitFare*tripDurationSec/3600)*100) / 100
}

// GeneralisedCost computes a passenger's generalised cost for one mode
// (Demand.py's generalised_cost expression): UConst + UFare*fare +
// VoT*waitTime*phi.
func GeneralisedCost(uConst, uFare, vot, fare, waitTime, phi float64) float64 {
	return uConst + uFare*fare + vot*waitTime*phi
}

// ChooseMode applies the multinomial-logit choice over {HV, AV, outside}
// generalised costs (Demand.py's preferEV / SPEC_FULL's Open Question 4 generalisation
// to two serving modes), returning the chosen Mode. draw is a
// uniform(0,1) PRNG sample supplied by the caller.
func ChooseMode(hvGC, avGC, othersGC, draw float64) model.Mode {
	wHV := math.Exp(-hvGC)
	wAV := math.Exp(-avGC)
	wOut := math.Exp(-othersGC)
	total := wHV + wAV + wOut
	pHV := wHV / total
	pAV := wAV / total
	if draw < pHV {
		return model.ModeHV
	}
	if draw < pHV+pAV {
		return model.ModeAV
	}
	return model.ModeOutside
}
