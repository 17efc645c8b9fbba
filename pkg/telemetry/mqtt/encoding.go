package mqtt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/lorabridge/pkg/link"
)

// Encoding selects the wire format of telemetry payloads.
type Encoding string

// Encodings
const (
	EncodingJSON Encoding = "json"
	// EncodingProtobuf is a serialized google.protobuf.Struct.
	EncodingProtobuf Encoding = "protobuf"
)

// ParseEncoding parses the name of an encoding, empty means JSON.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingProtobuf, "proto", "pb":
		return EncodingProtobuf, nil
	}
	return "", fmt.Errorf("unknown telemetry encoding %q", name)
}

// Marshal encodes fields.
func (e Encoding) Marshal(fields map[string]interface{}) ([]byte, error) {
	switch e {
	case EncodingProtobuf:
		s, err := structFrom(fields)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return json.Marshal(fields)
	}
}

// EventFields flattens an event into encodable fields.
func EventFields(ev link.Event, at time.Time) map[string]interface{} {
	fields := map[string]interface{}{
		"kind": ev.Kind(),
		"time": at.UTC().Format(time.RFC3339Nano),
	}
	switch e := ev.(type) {
	case *link.TransmitEvent:
		fields["size"] = e.Size
		if e.Err != nil {
			fields["error"] = e.Err.Error()
		}
	case *link.ReceiveEvent:
		fields["size"] = len(e.Payload)
		fields["payload"] = base64.StdEncoding.EncodeToString(e.Payload)
		if q := e.Quality; q != nil {
			fields["rssi"] = q.RSSI
			fields["snr"] = q.SNR
			fields["freq_error"] = q.FreqError
		}
	case *link.ReceiveErrorEvent:
		fields["op"] = e.Op
		fields["error"] = e.Err.Error()
	case *link.OverflowEvent:
		fields["dropped"] = e.Dropped
		fields["limit"] = e.Limit
	}
	return fields
}

func structFrom(fields map[string]interface{}) (*structpb.Struct, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for key, val := range fields {
		v, err := valueOf(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		s.Fields[key] = v
	}
	return s, nil
}

func valueOf(val interface{}) (*structpb.Value, error) {
	switch v := val.(type) {
	case nil:
		return &structpb.Value{Kind: &structpb.Value_NullValue{}}, nil
	case string:
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}, nil
	case bool:
		return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}, nil
	case int:
		return numberValue(float64(v)), nil
	case int8:
		return numberValue(float64(v)), nil
	case uint8:
		return numberValue(float64(v)), nil
	case uint16:
		return numberValue(float64(v)), nil
	case uint32:
		return numberValue(float64(v)), nil
	case uint64:
		return numberValue(float64(v)), nil
	case float64:
		return numberValue(v), nil
	case map[string]interface{}:
		s, err := structFrom(v)
		if err != nil {
			return nil, err
		}
		return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: s}}, nil
	}
	return nil, fmt.Errorf("unsupported type %T", val)
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}
