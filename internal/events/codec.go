package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownType is returned by Decode for a tag outside AllTypes
var ErrUnknownType = errors.New("unknown event type")

// TimestampFormat is ISO-8601 UTC with milliseconds
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the wire form of an event
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Encode renders ev as a wire envelope stamped with at
func Encode(ev Event, at time.Time) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("encode event: nil")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:      ev.Type(),
		Payload:   payload,
		Timestamp: at.UTC().Format(TimestampFormat),
	})
}

// Decode parses a wire envelope back into its concrete event
func Decode(data []byte) (Event, time.Time, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode envelope: %w", err)
	}

	var ts time.Time
	if env.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, env.Timestamp)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		ts = parsed
	}

	ev, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return nil, ts, err
	}
	return ev, ts, nil
}

func decodePayload(typ string, payload json.RawMessage) (Event, error) {
	switch typ {
	case TypeConnectionEstablished:
		return unmarshal[ConnectionEstablished](typ, payload)
	case TypeStateUpdate:
		return unmarshal[StateUpdate](typ, payload)
	case TypeStatePhaseChange:
		return unmarshal[StatePhaseChange](typ, payload)
	case TypeStateCleared:
		return StateCleared{}, nil
	case TypeTaskUpdate:
		return unmarshal[TaskUpdate](typ, payload)
	case TypeTaskStarted:
		return unmarshal[TaskStarted](typ, payload)
	case TypeTaskCompleted:
		return unmarshal[TaskCompleted](typ, payload)
	case TypeTaskFailed:
		return unmarshal[TaskFailed](typ, payload)
	case TypeCheckpointCreated:
		return unmarshal[CheckpointCreated](typ, payload)
	case TypeLearningsUpdate:
		return unmarshal[LearningsUpdate](typ, payload)
	case TypeLearningsCleared:
		return LearningsCleared{}, nil
	case TypeConfigUpdate:
		return unmarshal[ConfigUpdate](typ, payload)
	case TypeConfigProjectRemoved:
		return ConfigProjectRemoved{}, nil
	case TypeAplStarted:
		return unmarshal[AplStarted](typ, payload)
	case TypeAplStopped:
		return unmarshal[AplStopped](typ, payload)
	case TypeAplOutput:
		return unmarshal[AplOutput](typ, payload)
	case TypeAplError:
		return unmarshal[AplError](typ, payload)
	case TypeError:
		return unmarshal[Error](typ, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func unmarshal[T Event](typ string, payload json.RawMessage) (Event, error) {
	var ev T
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
	}
	return ev, nil
}
