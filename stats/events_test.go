package stats

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestMarketEventJSONRoundTripsAllPayloadTypes(t *testing.T) {
	cases := []struct {
		name    string
		event   MarketEvent
		wantTyp interface{}
	}{
		{
			name:    "Assignment",
			event:   MarketEvent{Time: 10, Type: EventAssignment, Payload: AssignmentPayload{VehicleID: 1, PassengerID: 2, Kind: "HV", DispatchT: 30, DeliveryT: 330}},
			wantTyp: AssignmentPayload{},
		},
		{
			name:    "Expiration",
			event:   MarketEvent{Time: 20, Type: EventExpiration, Payload: ExpirationPayload{PassengerID: 5, ExpiredT: 80}},
			wantTyp: ExpirationPayload{},
		},
		{
			name:    "Dropoff",
			event:   MarketEvent{Time: 30, Type: EventDropoff, Payload: DropoffPayload{VehicleID: 1, Utilisation: 0.75}},
			wantTyp: DropoffPayload{},
		},
		{
			name:    "Control",
			event:   MarketEvent{Time: 40, Type: EventControl, Payload: ControlPayload{AVFare: 36, HVFare: 34, AVFleet: 2}},
			wantTyp: ControlPayload{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			var got MarketEvent
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got.Type != tc.event.Type {
				t.Errorf("expected Type %s, got %s", tc.event.Type, got.Type)
			}
			if fmt.Sprintf("%T", got.Payload) != fmt.Sprintf("%T", tc.wantTyp) {
				t.Errorf("expected payload type %T, got %T", tc.wantTyp, got.Payload)
			}
		})
	}
}

func TestMarketEventUnknownTypeYieldsNilPayload(t *testing.T) {
	data := []byte(`{"time":1,"type":"BOGUS","payload":{}}`)
	var got MarketEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Payload != nil {
		t.Errorf("expected nil payload for unknown type, got %#v", got.Payload)
	}
}
