// Package control implements the receding-horizon MPC fare/fleet
// controller of spec.md §4.7, grounded directly on
// original_source/Control.py's mpc_mixed_fleet model and MPC.trigger.
//
// original_source uses pyomo + the ipopt NLP solver; no NLP/pyomo
// equivalent exists anywhere in the retrieval pack, so the continuous
// relaxation is solved with gonum.org/v1/gonum/optimize's derivative-free
// Nelder-Mead method over the flattened control vector (AV_fare, HV_fare,
// AV_fleet for each of the Nc active control intervals), with the state
// trajectory unrolled deterministically inside the objective rather than
// carried as NLP decision variables — the two formulations have the same
// optimum since, given the controls, the dynamics are a pure function with
// no remaining degrees of freedom.
package control

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Parameters mirrors original_source/Control.py's Parameters class.
type Parameters struct {
	AVBaseFare, HVBaseFare       float64
	AVConst, HVConst             float64
	AVCoefFare, HVCoefFare       float64
	MeanVoT                      float64
	UScale                       float64
	OthersGC                     float64
	AVVacantCost, AVOperational  float64
	AVPenalty, HVPenalty         float64
	OthersPenalty                float64
	Beta                         float64
	Decay                        float64
	HVWage                       float64
	Neoclassical                 float64 // fraction of HV fleet using the neoclassical rule
}

// DefaultParameters returns the constants Control.py hard-codes.
func DefaultParameters() Parameters {
	return Parameters{
		AVBaseFare: 2.5, HVBaseFare: 2.5,
		AVConst: 0, HVConst: 0,
		AVCoefFare: 3.2, HVCoefFare: 3.2,
		MeanVoT: 32.0 / 3600,
		UScale:  0.1,
		OthersGC: 6,
		AVVacantCost: 0.001, AVOperational: 0.002,
		AVPenalty: 5, HVPenalty: 5, OthersPenalty: 1,
		Beta:  3.5517737906200484,
		Decay: 0.8,
		HVWage: 30,
		Neoclassical: 0.5,
	}
}

// KindState is the four-state block per kind (spec.md §3/§4.7: pw, nv, na, no).
type KindState struct {
	PW, NV, NA, NO float64
}

// Market carries the per-kind averages used inside the choice expressions
// (Variables.AV_ta/to, HV_ta/to in Control.py).
type Market struct {
	AVTa, AVTo float64
	HVTa, HVTo float64
	AVFare     float64
	HVFare     float64
	HVTotal    float64 // total HV fleet size, for HV_exit_ratio
	TotalWage  float64
}

// Corrections carries the pending pickup/dropoff correction streams, keyed
// by absolute simulation time (Statistics.*_counter in Control.py).
type Corrections struct {
	AVPickup  map[float64]float64
	AVDropoff map[float64]float64
	HVPickup  map[float64]float64
	HVDropoff map[float64]float64
}

// Horizon bundles the receding-horizon sizing of spec.md §4.7: N control
// intervals of length tauC seconds, the first Nc of which are free
// controls, discretised at step tauK seconds.
type Horizon struct {
	N    int
	Nc   int
	TauC float64
	TauK float64
}

func (h Horizon) steps() int { return int(h.N*int(h.TauC) / int(h.TauK)) }

// Forecast supplies the exogenous demand/supply sequences over the horizon
// (Statistics.histDemand/histSupply).
type Forecast struct {
	TotalDemand []float64 // per tauK step
	HVSupply    []float64
}

// Result is the controller's decision, applied immediately per spec.md §4.7
// (only the first control interval's values are used).
type Result struct {
	AVFare     float64
	HVFare     float64
	AVFleet    int
	Objective  float64
	Solved     bool
}

// Controller runs one MPC solve per invocation; it is stateless beyond the
// parameters, mirroring Control.py's MPC.trigger which rebuilds the model
// from scratch every call.
type Controller struct {
	Params Parameters
}

// PickupTimeEstimate reproduces MPC.trigger's HV pickup-time power-law
// estimate (distinct from the phi ETA-ratio formula — see SPEC_FULL.md's
// Open Question decision).
func PickupTimeEstimate(hvPW, hvNV, hvTa float64) float64 {
	if hvPW <= 0 && hvNV <= 0 {
		return hvTa
	}
	less := math.Min(hvPW, hvNV)
	more := math.Max(hvPW, hvNV)
	return math.Exp(7.597474) * math.Pow(less, 0.189208) * math.Pow(more, -0.579565)
}

// decision is the flattened control vector gonum/optimize works over:
// [AVFare_0..Nc-1, HVFare_0..Nc-1, AVFleet_0..Nc-1].
type decision struct {
	nc int
}

func (d decision) avFare(x []float64, k int) float64  { return x[k] }
func (d decision) hvFare(x []float64, k int) float64   { return x[d.nc+k] }
func (d decision) avFleet(x []float64, k int) float64  { return x[2*d.nc+k] }

// Solve runs the receding-horizon optimisation and returns the immediate
// control values (AVFare/HVFare/AVFleet at k=0) plus the objective value,
// per spec.md §4.7 and §7's "apply-or-retain" error policy: a caller that
// receives Result{Solved:false} must retain the previous fare controls.
func (c *Controller) Solve(av, hv KindState, mkt Market, horizon Horizon, forecast Forecast, corr Corrections, t0, avVacant float64, avFleetCapacityHeadroom float64) Result {
	d := decision{nc: horizon.Nc}
	nSteps := horizon.steps()
	tauK := horizon.TauK
	tauC := horizon.TauC

	controlForStep := func(t int) int {
		return int(float64(t) * tauK / tauC)
	}

	objective := func(x []float64) float64 {
		penalty := 0.0
		for k := 0; k < horizon.Nc; k++ {
			if d.avFare(x, k) < 0 || d.avFare(x, k) > 180 {
				penalty += 1e6 * (d.avFare(x, k) - clamp(d.avFare(x, k), 0, 180)) * (d.avFare(x, k) - clamp(d.avFare(x, k), 0, 180))
			}
			if d.hvFare(x, k) < 0 || d.hvFare(x, k) > 180 {
				penalty += 1e6 * (d.hvFare(x, k) - clamp(d.hvFare(x, k), 0, 180)) * (d.hvFare(x, k) - clamp(d.hvFare(x, k), 0, 180))
			}
			if d.avFleet(x, k) < -avVacant || d.avFleet(x, k) > avFleetCapacityHeadroom {
				penalty += 1e6
			}
		}

		avState := av
		hvState := hv
		profit := 0.0
		for t := 0; t < nSteps; t++ {
			tAbs := t0 + float64(t)*tauK
			k := controlForStep(t)
			avFare := d.avFare(x, min(k, horizon.Nc-1))
			hvFare := d.hvFare(x, min(k, horizon.Nc-1))
			avFleet := d.avFleet(x, min(k, horizon.Nc-1))

			demand := lookup(forecast.TotalDemand, t)
			hvSupply := lookup(forecast.HVSupply, t)

			avGC := c.Params.UScale * (c.Params.AVConst + c.Params.AVCoefFare*(c.Params.AVBaseFare+avFare*120*logSafe(mkt.AVTo)/3600) + c.Params.MeanVoT*mkt.AVTa)
			hvGC := c.Params.UScale * (c.Params.HVConst + c.Params.HVCoefFare*(c.Params.HVBaseFare+hvFare*120*logSafe(mkt.HVTo)/3600) + c.Params.MeanVoT*mkt.HVTa)
			wAV, wHV, wOut := math.Exp(-avGC), math.Exp(-hvGC), math.Exp(-c.Params.OthersGC)
			sumW := wAV + wHV + wOut
			avU := wAV / sumW
			hvU := wHV / sumW

			avMatch := math.Min(avState.PW, avState.NV)
			hvMatch := math.Min(hvState.PW, hvState.NV)
			avExp := c.Params.Beta * tauK / tauC * math.Max(avState.PW-avState.NV, 0)
			hvExp := c.Params.Beta * tauK / tauC * math.Max(hvState.PW-hvState.NV, 0)

			avPickupCorr := corr.AVPickup[tAbs]
			avDropoffCorr := corr.AVDropoff[tAbs]
			hvPickupCorr := corr.HVPickup[tAbs]
			hvDropoffCorr := corr.HVDropoff[tAbs]

			hvExitRatio := hvExitRatio(c.Params, hvState, mkt)

			profit += avMatch*(avFare*mkt.AVTo/3600+c.Params.AVBaseFare) - tauK*(c.Params.AVOperational*(avState.NA+avState.NO)+c.Params.AVVacantCost*avState.NV)
			profit += hvMatch*((hvFare-c.Params.HVWage)*mkt.HVTo/3600+c.Params.HVBaseFare)
			profit -= c.Params.AVPenalty * avExp
			profit -= c.Params.HVPenalty * hvExp
			profit -= c.Params.OthersPenalty * demand * (1 - avU - hvU)

			// advance state (system_dynamics)
			nextAV := KindState{
				PW: avState.PW + demand*avU - avMatch - avExp,
				NV: avState.NV - avMatch + avDropoffCorr,
				NA: avState.NA + avMatch - avPickupCorr,
				NO: avState.NO + avPickupCorr - avDropoffCorr,
			}
			if t%int(tauC/tauK) == 0 {
				nextAV.NV += avFleet
			}
			nextHV := KindState{
				PW: hvState.PW + demand*hvU - hvMatch - hvExp,
				NV: hvState.NV + hvSupply - hvMatch + (1-0.5*hvExitRatio)*hvDropoffCorr,
				NA: hvState.NA + hvMatch - hvPickupCorr,
				NO: hvState.NO + hvPickupCorr - hvDropoffCorr,
			}
			avState, hvState = clampState(nextAV), clampState(nextHV)
		}
		return -profit + penalty // Nelder-Mead minimises
	}

	nDim := 3 * horizon.Nc
	x0 := make([]float64, nDim)
	for k := 0; k < horizon.Nc; k++ {
		x0[k] = mkt.AVFare
		x0[horizon.Nc+k] = mkt.HVFare
		x0[2*horizon.Nc+k] = 0
	}

	problem := optimize.Problem{Func: objective}
	res, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil || res == nil || res.Status == optimize.Failure {
		return Result{Solved: false}
	}

	return Result{
		AVFare:    clamp(res.X[0], 0, 180),
		HVFare:    clamp(res.X[horizon.Nc], 0, 180),
		AVFleet:   int(math.Round(res.X[2*horizon.Nc])),
		Objective: -res.F,
		Solved:    true,
	}
}

func hvExitRatio(p Parameters, hv KindState, mkt Market) float64 {
	if mkt.HVTotal <= 0 {
		return 0
	}
	neoExit := p.Neoclassical / (1 + math.Exp(13.4*(hv.NO/mkt.HVTotal-0.432)))
	wageTerm := (mkt.TotalWage + p.HVWage*hv.NO/3600) / mkt.HVTotal
	incomeExit := (1 - p.Neoclassical) * (0.0104*math.Exp(0.0211*wageTerm) - 0.0104)
	return neoExit + incomeExit
}

func clampState(s KindState) KindState {
	return KindState{
		PW: math.Max(0, s.PW),
		NV: math.Max(0, s.NV),
		NA: math.Max(0, s.NA),
		NO: math.Max(0, s.NO),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func logSafe(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log(v)
}

func lookup(xs []float64, i int) float64 {
	if i < 0 || i >= len(xs) {
		return 0
	}
	return xs[i]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
