package axis

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/axis-lang/axis-go/logstore"
)

// Durable collector records carry a JSON-encoded value. Only primitives
// survive a restart: an object reference is meaningless in a fresh arena, so
// it round-trips as Undefined.

type recordPayload struct {
	Kind string   `json:"kind"`
	Num  *float64 `json:"num,omitempty"`
	Str  *string  `json:"str,omitempty"`
	Bool *bool    `json:"bool,omitempty"`
}

func encodeRecord(v Value) (logstore.Record, error) {
	p := recordPayload{Kind: v.Kind().String()}
	switch v.Kind() {
	case NumberValue:
		n := v.Num()
		p.Num = &n
	case StringValue:
		s := v.Str()
		p.Str = &s
	case BooleanValue:
		b := v.Bool()
		p.Bool = &b
	case ObjectValue, FunctionValue:
		p.Kind = UndefinedValue.String()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return logstore.Record{}, fmt.Errorf("encoding record: %w", err)
	}
	return logstore.Record{ID: uuid.NewString(), Payload: payload}, nil
}

func decodeRecord(rec logstore.Record) (Value, error) {
	var p recordPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return Undefined(), fmt.Errorf("decoding record %s: %w", rec.ID, err)
	}
	switch p.Kind {
	case "undefined":
		return Undefined(), nil
	case "number":
		if p.Num == nil {
			return Undefined(), fmt.Errorf("record %s: number without payload", rec.ID)
		}
		return Number(*p.Num), nil
	case "string":
		if p.Str == nil {
			return Undefined(), fmt.Errorf("record %s: string without payload", rec.ID)
		}
		return String(*p.Str), nil
	case "boolean":
		if p.Bool == nil {
			return Undefined(), fmt.Errorf("record %s: boolean without payload", rec.ID)
		}
		return Boolean(*p.Bool), nil
	default:
		return Undefined(), fmt.Errorf("record %s: unknown kind %q", rec.ID, p.Kind)
	}
}
