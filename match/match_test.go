package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolveSquareMatrixPicksMinimumCostAssignment(t *testing.T) {
	// vehicle 0 is closer to passenger 1, vehicle 1 closer to passenger 0;
	// the optimal total-duration assignment must cross-match them.
	cost := [][]float64{
		{10, 2},
		{3, 9},
	}
	pairs := Solve(cost)
	require.Len(t, pairs, 2)

	got := map[int]int{}
	for _, p := range pairs {
		got[p.VehicleIdx] = p.PassengerIdx
	}
	require.Equal(t, 1, got[0])
	require.Equal(t, 0, got[1])
}

func TestSolveRectangularLeavesExtraRowsUnmatched(t *testing.T) {
	// three vehicles, one passenger: exactly one pair in the result.
	cost := [][]float64{
		{5},
		{1},
		{9},
	}
	pairs := Solve(cost)
	require.Len(t, pairs, 1)
	require.Equal(t, 1, pairs[0].VehicleIdx)
	require.Equal(t, 0, pairs[0].PassengerIdx)
}

func TestSolveSkipsForbiddenInfiniteCostPairs(t *testing.T) {
	cost := [][]float64{
		{math.Inf(1), 4},
		{math.Inf(1), math.Inf(1)},
	}
	pairs := Solve(cost)
	require.Len(t, pairs, 1)
	require.Equal(t, 0, pairs[0].VehicleIdx)
	require.Equal(t, 1, pairs[0].PassengerIdx)
}

func TestSolveEmptyInputsReturnNil(t *testing.T) {
	require.Nil(t, Solve(nil))
	require.Nil(t, Solve([][]float64{}))
	require.Nil(t, Solve([][]float64{{}}))
}
