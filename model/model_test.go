package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVehicleVacantHVRequiresStatusVacant(t *testing.T) {
	v := &Vehicle{Kind: KindHV, Status: StatusVacant}
	require.True(t, v.Vacant())
	v.Status = StatusAssigned
	require.False(t, v.Vacant())
}

func TestVehicleVacantAVRequiresActiveAndVacant(t *testing.T) {
	v := &Vehicle{Kind: KindAV, Status: StatusVacant, AV: &AVState{Active: false}}
	require.False(t, v.Vacant())
	v.AV.Active = true
	require.True(t, v.Vacant())
}

func TestPassengerExpiredComparesAgainstExpiresAt(t *testing.T) {
	p := &Passenger{ExpiresAt: 100}
	require.False(t, p.Expired(99))
	require.True(t, p.Expired(100))
	require.True(t, p.Expired(101))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "HV", KindHV.String())
	require.Equal(t, "AV", KindAV.String())
}
