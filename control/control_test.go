package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultParametersMatchOriginalConstants(t *testing.T) {
	p := DefaultParameters()
	require.Equal(t, 2.5, p.AVBaseFare)
	require.Equal(t, 3.2, p.AVCoefFare)
	require.InDelta(t, 3.5517737906200484, p.Beta, 1e-12)
	require.Equal(t, 0.5, p.Neoclassical)
}

func TestHorizonStepsDerivesFromTauCAndTauK(t *testing.T) {
	h := Horizon{N: 12, Nc: 4, TauC: 300, TauK: 10}
	require.Equal(t, 12*300/10, h.steps())
}

func TestSolveReturnsClampedFaresWithinBounds(t *testing.T) {
	c := &Controller{Params: DefaultParameters()}
	av := KindState{PW: 5, NV: 10, NA: 2, NO: 0}
	hv := KindState{PW: 5, NV: 10, NA: 2, NO: 0}
	mkt := Market{AVTa: 300, AVTo: 600, HVTa: 300, HVTo: 600, AVFare: 36, HVFare: 36, HVTotal: 20}
	horizon := Horizon{N: 2, Nc: 1, TauC: 300, TauK: 150}
	forecast := Forecast{TotalDemand: []float64{5, 5, 5, 5}, HVSupply: []float64{0, 0, 0, 0}}
	corr := Corrections{AVPickup: map[float64]float64{}, AVDropoff: map[float64]float64{}, HVPickup: map[float64]float64{}, HVDropoff: map[float64]float64{}}

	res := c.Solve(av, hv, mkt, horizon, forecast, corr, 0, 10, 50)
	require.True(t, res.Solved)
	require.GreaterOrEqual(t, res.AVFare, 0.0)
	require.LessOrEqual(t, res.AVFare, 180.0)
	require.GreaterOrEqual(t, res.HVFare, 0.0)
	require.LessOrEqual(t, res.HVFare, 180.0)
}

func TestHvExitRatioZeroWhenNoFleet(t *testing.T) {
	p := DefaultParameters()
	got := hvExitRatio(p, KindState{NO: 3}, Market{HVTotal: 0})
	require.Equal(t, 0.0, got)
}

func TestClampStateFloorsAtZero(t *testing.T) {
	got := clampState(KindState{PW: -5, NV: -1, NA: 2, NO: -9})
	require.Equal(t, KindState{PW: 0, NV: 0, NA: 2, NO: 0}, got)
}

func TestPickupTimeEstimateFallsBackToAverageWhenNoFlow(t *testing.T) {
	got := PickupTimeEstimate(0, 0, 123)
	require.Equal(t, 123.0, got)
}
