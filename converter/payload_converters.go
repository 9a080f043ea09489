package converter

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	command "github.com/goliatone/go-command-worker"
)

// NullConverter encodes nil values.
type NullConverter struct{}

func (NullConverter) Encoding() string { return EncodingNull }

func (NullConverter) ToPayload(value any) (*command.Payload, error) {
	if isNil(value) {
		return newPayload(EncodingNull, nil), nil
	}
	return nil, nil
}

func (NullConverter) FromPayload(_ command.Payload, valuePtr any) error {
	rv := reflect.ValueOf(valuePtr).Elem()
	rv.Set(reflect.Zero(rv.Type()))
	return nil
}

// BinaryConverter passes byte slices through untouched.
type BinaryConverter struct{}

func (BinaryConverter) Encoding() string { return EncodingBinary }

func (BinaryConverter) ToPayload(value any) (*command.Payload, error) {
	if b, ok := value.([]byte); ok {
		return newPayload(EncodingBinary, b), nil
	}
	return nil, nil
}

func (BinaryConverter) FromPayload(payload command.Payload, valuePtr any) error {
	switch ptr := valuePtr.(type) {
	case *[]byte:
		*ptr = payload.Data
	case *any:
		*ptr = payload.Data
	default:
		return fmt.Errorf("binary payload cannot be decoded into %T", valuePtr)
	}
	return nil
}

// ProtoJSONConverter encodes protobuf messages with protojson.
type ProtoJSONConverter struct{}

func (ProtoJSONConverter) Encoding() string { return EncodingProtoJSON }

func (ProtoJSONConverter) ToPayload(value any) (*command.Payload, error) {
	msg, ok := value.(proto.Message)
	if !ok {
		return nil, nil
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return newPayload(EncodingProtoJSON, data), nil
}

func (ProtoJSONConverter) FromPayload(payload command.Payload, valuePtr any) error {
	if msg, ok := valuePtr.(proto.Message); ok {
		return protojson.Unmarshal(payload.Data, msg)
	}

	// **T where *T is a message
	rv := reflect.ValueOf(valuePtr).Elem()
	if rv.Kind() == reflect.Pointer {
		fresh := reflect.New(rv.Type().Elem())
		if msg, ok := fresh.Interface().(proto.Message); ok {
			if err := protojson.Unmarshal(payload.Data, msg); err != nil {
				return err
			}
			rv.Set(fresh)
			return nil
		}
	}

	// fall back to the generic json shape
	return json.Unmarshal(payload.Data, valuePtr)
}

// JSONConverter encodes any value with encoding/json.
type JSONConverter struct{}

func (JSONConverter) Encoding() string { return EncodingJSON }

func (JSONConverter) ToPayload(value any) (*command.Payload, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return newPayload(EncodingJSON, data), nil
}

func (JSONConverter) FromPayload(payload command.Payload, valuePtr any) error {
	return json.Unmarshal(payload.Data, valuePtr)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		// a nil []byte is still binary data
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		return rv.IsNil()
	}
	return false
}
