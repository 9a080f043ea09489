// Package converter turns Go values into payloads and back.
package converter

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-errors"

	command "github.com/goliatone/go-command-worker"
)

// Encodings written into the payload metadata.
const (
	EncodingNull      = "binary/null"
	EncodingBinary    = "binary/plain"
	EncodingProtoJSON = "json/protobuf"
	EncodingJSON      = "json/plain"
)

const ErrCodeConversion = "PAYLOAD_CONVERSION"

var ErrConversion = errors.New("payload conversion failed", errors.CategoryBadInput).
	WithTextCode(ErrCodeConversion)

// DataConverter encodes values into payloads and decodes them back.
type DataConverter interface {
	ToPayload(value any) (command.Payload, error)
	FromPayload(payload command.Payload, valuePtr any) error
	ToPayloads(values ...any) (command.Payloads, error)
	FromPayloads(payloads command.Payloads, valuePtrs ...any) error
}

// PayloadConverter handles a single encoding. ToPayload returns nil when the
// value is not handled by this converter.
type PayloadConverter interface {
	Encoding() string
	ToPayload(value any) (*command.Payload, error)
	FromPayload(payload command.Payload, valuePtr any) error
}

// CompositeDataConverter tries payload converters in order when encoding and
// picks one by metadata when decoding.
type CompositeDataConverter struct {
	converters []PayloadConverter
	byEncoding map[string]PayloadConverter
}

// NewDataConverter builds a composite converter. The order of converters is
// the order they are tried in.
func NewDataConverter(converters ...PayloadConverter) *CompositeDataConverter {
	c := &CompositeDataConverter{
		converters: converters,
		byEncoding: make(map[string]PayloadConverter, len(converters)),
	}
	for _, pc := range converters {
		c.byEncoding[pc.Encoding()] = pc
	}
	return c
}

// Default returns the standard converter chain: null, binary, protobuf json
// and plain json.
func Default() *CompositeDataConverter {
	return NewDataConverter(
		NullConverter{},
		BinaryConverter{},
		ProtoJSONConverter{},
		JSONConverter{},
	)
}

func (c *CompositeDataConverter) ToPayload(value any) (command.Payload, error) {
	for _, pc := range c.converters {
		p, err := pc.ToPayload(value)
		if err != nil {
			return command.Payload{}, conversionError(fmt.Sprintf("encode %T as %s", value, pc.Encoding()), err)
		}
		if p != nil {
			return *p, nil
		}
	}
	return command.Payload{}, conversionError(fmt.Sprintf("no converter accepts %T", value), nil)
}

func (c *CompositeDataConverter) FromPayload(payload command.Payload, valuePtr any) error {
	if valuePtr == nil {
		return nil
	}
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return conversionError(fmt.Sprintf("decode target must be a non nil pointer, got %T", valuePtr), nil)
	}

	encoding := payload.Encoding()
	pc, ok := c.byEncoding[encoding]
	if !ok {
		return conversionError(fmt.Sprintf("unknown payload encoding %q", encoding), nil)
	}
	if err := pc.FromPayload(payload, valuePtr); err != nil {
		return conversionError(fmt.Sprintf("decode %s into %T", encoding, valuePtr), err)
	}
	return nil
}

func (c *CompositeDataConverter) ToPayloads(values ...any) (command.Payloads, error) {
	out := make(command.Payloads, 0, len(values))
	for _, v := range values {
		p, err := c.ToPayload(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *CompositeDataConverter) FromPayloads(payloads command.Payloads, valuePtrs ...any) error {
	for i, ptr := range valuePtrs {
		if i >= len(payloads) {
			break
		}
		if err := c.FromPayload(payloads[i], ptr); err != nil {
			return err
		}
	}
	return nil
}

func newPayload(encoding string, data []byte) *command.Payload {
	return &command.Payload{
		Metadata: map[string][]byte{command.MetadataEncoding: []byte(encoding)},
		Data:     data,
	}
}

func conversionError(message string, source error) *errors.Error {
	return command.CloneError(ErrConversion, message, source, nil)
}
