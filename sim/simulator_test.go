package sim

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"ridesim/config"
	"ridesim/geo"
	"ridesim/model"
	"ridesim/stats"
)

func testGraph(t *testing.T) *geo.Graph {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sim-graph-*.csv")
	require.NoError(t, err)
	_, err = f.WriteString("1,2,60,500\n2,1,60,500\n")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	g, err := geo.LoadGraph(f)
	require.NoError(t, err)
	return g
}

func testCfg(t *testing.T) *config.Config {
	return &config.Config{
		Seed:              7,
		AssignIntervalSec: 30,
		MPCIntervalSec:    0, // disable MPC so tests exercise only the matcher/lifecycle
		MPCHorizonSteps:   4,
		MPCControlSteps:   2,
		OutputDir:         t.TempDir(),
	}
}

func newTestSimulator(t *testing.T) (*Simulator, *geo.Graph) {
	t.Helper()
	g := testGraph(t)
	w, err := stats.NewWriters(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	s := New(testCfg(t), g, w)
	return s, g
}

func TestSinglePassengerExpiresWithNoVehicles(t *testing.T) {
	s, _ := newTestSimulator(t)

	s.ScheduleRecurring()
	s.SeedDemand(nil)
	s.queue.Push(&newPassengerEvent{t: 0, sim: s, rec: passengerArgs{
		origin: geo.AtNode(1), destination: geo.AtNode(2),
		tripDistance: 500, tripDuration: 60, patience: 10,
		uConst: 0, uFare: 3.2, vot: 32,
	}})
	s.lastPassengerTime = 60

	require.NoError(t, s.Run())
	require.Empty(t, s.waitingHV)
	require.Empty(t, s.waitingAV)
}

func TestMatchAndDropoffCompletesTripAndRevacatesVehicle(t *testing.T) {
	// Bypasses mode-choice (which is stochastic) to exercise the
	// match -> tripCompletionEvent -> revacate path deterministically.
	s, _ := newTestSimulator(t)
	vehicle := &model.Vehicle{ID: 1, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(1), HV: &model.HVState{HourlyCost: 20}}
	s.SeedFleet([]*model.Vehicle{vehicle})

	p := &model.Passenger{ID: 1, Origin: geo.AtNode(1), Destination: geo.AtNode(2), TripDuration: 60, Patience: 600}
	s.waitingHV[p.ID] = p
	s.allPass[p.ID] = p

	s.runAssignment(0)
	require.True(t, p.Matched)
	require.Equal(t, model.StatusAssigned, vehicle.Status)

	require.NoError(t, s.Run())

	require.Equal(t, model.StatusVacant, vehicle.Status)
	require.Equal(t, 1, vehicle.TripCount)
}

func TestMatchTransitionsThroughOccupiedAtMeetingTime(t *testing.T) {
	s, _ := newTestSimulator(t)
	vehicle := &model.Vehicle{ID: 1, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(1), HV: &model.HVState{HourlyCost: 20}}
	s.SeedFleet([]*model.Vehicle{vehicle})

	p := &model.Passenger{ID: 1, Origin: geo.AtNode(1), Destination: geo.AtNode(2), TripDuration: 60, Patience: 600}
	s.waitingHV[p.ID] = p
	s.allPass[p.ID] = p

	s.runAssignment(0)
	require.Equal(t, model.StatusAssigned, vehicle.Status)
	meetingTime := vehicle.DispatchTime
	deliveryTime := vehicle.DeliveryTime
	require.Less(t, meetingTime, deliveryTime)

	for s.queue.Len() > 0 && s.queue.Peek().Time() <= meetingTime {
		require.NoError(t, s.queue.Pop().Trigger())
	}
	require.Equal(t, model.StatusOccupied, vehicle.Status)

	assigned, occupied := countAssignedOccupied(s.fleet, model.KindHV)
	require.Equal(t, 0, assigned)
	require.Equal(t, 1, occupied)

	require.NoError(t, s.Run())
	require.Equal(t, model.StatusVacant, vehicle.Status)
}

func TestRunAssignmentPrefersCloserVehicle(t *testing.T) {
	s, _ := newTestSimulator(t)
	near := &model.Vehicle{ID: 1, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(1), HV: &model.HVState{}}
	far := &model.Vehicle{ID: 2, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(2), HV: &model.HVState{}}
	s.SeedFleet([]*model.Vehicle{near, far})

	p := &model.Passenger{ID: 1, Origin: geo.AtNode(1), Destination: geo.AtNode(2), TripDuration: 60, Patience: 600}
	s.waitingHV[p.ID] = p
	s.allPass[p.ID] = p

	s.runAssignment(0)

	require.True(t, p.Matched)
	require.Equal(t, int64(1), p.VehicleID)
	require.Equal(t, model.StatusAssigned, near.Status)
	require.Equal(t, model.StatusVacant, far.Status)
}

func TestDrainToCompletionProducesNoTimeRegression(t *testing.T) {
	s, _ := newTestSimulator(t)
	v1 := &model.Vehicle{ID: 1, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(1), HV: &model.HVState{HourlyCost: 20, TargetIncome: 1e9}}
	v2 := &model.Vehicle{ID: 2, Kind: model.KindAV, Status: model.StatusVacant, Loc: geo.AtNode(2), AV: &model.AVState{Active: true}}
	s.SeedFleet([]*model.Vehicle{v1, v2})
	s.ScheduleRecurring()

	for i := 0; i < 5; i++ {
		s.queue.Push(&newPassengerEvent{t: float64(i) * 20, sim: s, rec: passengerArgs{
			origin: geo.AtNode(1), destination: geo.AtNode(2),
			tripDistance: 500, tripDuration: 60, patience: 120,
			uConst: 0, uFare: 3.2, vot: 32,
		}})
	}
	s.lastPassengerTime = 80

	require.NoError(t, s.Run())
	require.Empty(t, s.waitingHV)
	require.Empty(t, s.waitingAV)
}
