package match

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"ridesim/geo"
	"ridesim/model"
)

func newTestGraph(t *testing.T) *geo.Graph {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "assign-*.csv")
	require.NoError(t, err)
	_, err = f.WriteString("1,2,60,500\n2,3,120,1000\n3,1,60,500\n")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	g, err := geo.LoadGraph(f)
	require.NoError(t, err)
	return g
}

func TestAssignKindMatchesNearestVehicle(t *testing.T) {
	g := newTestGraph(t)

	near := &model.Vehicle{ID: 1, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(1)}
	far := &model.Vehicle{ID: 2, Kind: model.KindHV, Status: model.StatusVacant, Loc: geo.AtNode(2)}

	p := &model.Passenger{ID: 100, Origin: geo.AtNode(1), Destination: geo.AtNode(3), TripDuration: 300}

	results := AssignKind(g, 0, []*model.Vehicle{near, far}, []*model.Passenger{p})
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].Vehicle.ID)
	require.Equal(t, p.ID, results[0].Passenger.ID)
	require.Equal(t, 300.0, results[0].DeliveryTime-results[0].DispatchTime)
}

func TestAssignKindNoVehiclesOrPassengersReturnsNil(t *testing.T) {
	g := newTestGraph(t)
	require.Nil(t, AssignKind(g, 0, nil, []*model.Passenger{{ID: 1}}))
	require.Nil(t, AssignKind(g, 0, []*model.Vehicle{{ID: 1}}, nil))
}
