package fleet

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ridesim/geo"
	"ridesim/model"
)

func TestLoadFleetFromReaderDropsZeroQuantities(t *testing.T) {
	r := strings.NewReader(`{"fleet":[{"kind":"HV","quantity":3},{"kind":"AV","quantity":0}]}`)
	q, err := LoadFleetFromReader(r)
	require.NoError(t, err)
	require.Len(t, q, 1)
	require.Equal(t, "HV", q[0].Kind)
}

func TestBuildFleetSpreadsHVShiftStartsAndActivatesRequestedAVs(t *testing.T) {
	q := []Quantity{{Kind: "HV", Quantity: 3}, {Kind: "AV", Quantity: 2}}
	depot := geo.AtNode(1)
	rng := rand.New(rand.NewSource(1))

	vehicles := BuildFleet(q, depot, 1, rng)
	require.Len(t, vehicles, 5)

	var hvCount, avActive int
	for _, v := range vehicles {
		if v.Kind == model.KindHV {
			hvCount++
			require.Equal(t, model.StatusInactive, v.Status)
			require.NotNil(t, v.HV)
		} else {
			if v.AV.Active {
				avActive++
				require.Equal(t, model.StatusVacant, v.Status)
			} else {
				require.Equal(t, model.StatusInactive, v.Status)
			}
		}
	}
	require.Equal(t, 3, hvCount)
	require.Equal(t, 1, avActive)
}

func TestDecideExitForcesExitAtSimulationEnd(t *testing.T) {
	v := &model.Vehicle{Kind: model.KindHV, HV: &model.HVState{}}
	exit := DecideExit(v, 100, 20, 25, 0.99, true)
	require.True(t, exit)
	require.Equal(t, 1, v.HV.ExitDecisions)
	require.Equal(t, 1, v.HV.ActualExits)
}

func TestDecideExitForcesExitPastMaximumWorkSeconds(t *testing.T) {
	v := &model.Vehicle{Kind: model.KindHV, HV: &model.HVState{ShiftStart: 0}}
	exit := DecideExit(v, maximumWorkSeconds+1, 20, 25, 0.0, false)
	require.True(t, exit)
}

func TestDecideExitIncomeRuleContinuesUntilTargetReached(t *testing.T) {
	v := &model.Vehicle{Kind: model.KindHV, HV: &model.HVState{UsesIncomeRule: true, TargetIncome: 100, EarnedToday: 50}}
	require.False(t, DecideExit(v, 10, 20, 25, 0.5, false))

	v.HV.EarnedToday = 150
	require.True(t, DecideExit(v, 10, 20, 25, 0.5, false))
}

func TestActivateAndDeactivateRespectVacancy(t *testing.T) {
	fleetList := []*model.Vehicle{
		{Kind: model.KindAV, Status: model.StatusInactive, AV: &model.AVState{Active: false}},
		{Kind: model.KindAV, Status: model.StatusInactive, AV: &model.AVState{Active: false}},
	}
	n := Activate(fleetList, 1)
	require.Equal(t, 1, n)
	require.Equal(t, 1, VacantActive(fleetList, model.KindAV))

	n = Deactivate(fleetList, 5)
	require.Equal(t, 1, n) // only the one active vehicle can be deactivated
	require.Equal(t, 0, VacantActive(fleetList, model.KindAV))
}

func TestCompleteTripUpdatesRunningUtilisationMean(t *testing.T) {
	v := &model.Vehicle{}
	CompleteTrip(v, 80, 100)
	require.InDelta(t, 0.8, v.Utilisation, 1e-9)
	require.Equal(t, 1, v.TripCount)

	CompleteTrip(v, 50, 100)
	require.InDelta(t, (0.8+0.5)/2, v.Utilisation, 1e-9)
	require.Equal(t, 2, v.TripCount)
}
