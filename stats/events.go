package stats

import "encoding/json"

// MarketEventPayload is a marker interface for the live broadcast events
// published to Kafka (SPEC_FULL.md §B), mirroring
// pedeveaux-kafka-ride-sharing/events/types.go's discriminated-union
// payload pattern.
type MarketEventPayload interface {
	isMarketPayload()
}

type AssignmentPayload struct {
	VehicleID int64   `json:"vehicle_id"`
	PassengerID int64 `json:"passenger_id"`
	Kind        string  `json:"kind"`
	DispatchT   float64 `json:"dispatch_t"`
	DeliveryT   float64 `json:"delivery_t"`
}

func (AssignmentPayload) isMarketPayload() {}

type ExpirationPayload struct {
	PassengerID int64   `json:"passenger_id"`
	ExpiredT    float64 `json:"expired_t"`
}

func (ExpirationPayload) isMarketPayload() {}

type DropoffPayload struct {
	VehicleID   int64   `json:"vehicle_id"`
	Utilisation float64 `json:"utilisation"`
}

func (DropoffPayload) isMarketPayload() {}

type ControlPayload struct {
	AVFare  float64 `json:"av_fare"`
	HVFare  float64 `json:"hv_fare"`
	AVFleet int     `json:"av_fleet"`
}

func (ControlPayload) isMarketPayload() {}

// MarketEventType is a string-based enum for the broadcast topic.
type MarketEventType string

const (
	EventAssignment MarketEventType = "ASSIGNMENT"
	EventExpiration MarketEventType = "EXPIRATION"
	EventDropoff    MarketEventType = "DROPOFF"
	EventControl    MarketEventType = "CONTROL"
)

// MarketEvent is one broadcast message: a simulation time, a type tag, and
// the type-specific payload.
type MarketEvent struct {
	TraceID string             `json:"trace_id"`
	Time    float64            `json:"time"`
	Type    MarketEventType    `json:"type"`
	Payload MarketEventPayload `json:"payload"`
}

// UnmarshalJSON type-switches the payload by Type, mirroring
// pedeveaux-kafka-ride-sharing/events/types.go's RideEvent.UnmarshalJSON.
func (e *MarketEvent) UnmarshalJSON(data []byte) error {
	type Alias MarketEvent
	aux := &struct {
		Payload json.RawMessage `json:"payload"`
		*Alias
	}{Alias: (*Alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch e.Type {
	case EventAssignment:
		var p AssignmentPayload
		if err := json.Unmarshal(aux.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventExpiration:
		var p ExpirationPayload
		if err := json.Unmarshal(aux.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventDropoff:
		var p DropoffPayload
		if err := json.Unmarshal(aux.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventControl:
		var p ControlPayload
		if err := json.Unmarshal(aux.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	default:
		e.Payload = nil
	}
	return nil
}
