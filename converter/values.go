package converter

import (
	"fmt"

	command "github.com/goliatone/go-command-worker"
)

// Values is an ordered list of encoded values decoded on demand.
type Values interface {
	Len() int
	Get(index int, valuePtr any) error
	Payloads() command.Payloads
}

// EncodedValues keeps payloads and decodes them lazily.
type EncodedValues struct {
	payloads  command.Payloads
	converter DataConverter
}

func NewEncodedValues(payloads command.Payloads, dc DataConverter) *EncodedValues {
	if dc == nil {
		dc = Default()
	}
	return &EncodedValues{payloads: payloads, converter: dc}
}

// FromValues encodes values right away.
func FromValues(dc DataConverter, values ...any) (*EncodedValues, error) {
	if dc == nil {
		dc = Default()
	}
	payloads, err := dc.ToPayloads(values...)
	if err != nil {
		return nil, err
	}
	return &EncodedValues{payloads: payloads, converter: dc}, nil
}

// Empty returns a value list without payloads.
func Empty() *EncodedValues {
	return NewEncodedValues(nil, nil)
}

func (v *EncodedValues) Len() int {
	if v == nil {
		return 0
	}
	return len(v.payloads)
}

func (v *EncodedValues) HasValues() bool { return v.Len() > 0 }

func (v *EncodedValues) Get(index int, valuePtr any) error {
	if index < 0 || index >= v.Len() {
		return conversionError(fmt.Sprintf("value index %d out of range (%d values)", index, v.Len()), nil)
	}
	return v.converter.FromPayload(v.payloads[index], valuePtr)
}

func (v *EncodedValues) Payloads() command.Payloads {
	if v == nil {
		return nil
	}
	return v.payloads
}

// Decode reads the value at index as T. A missing index yields the zero
// value of T.
func Decode[T any](values Values, index int) (T, error) {
	var out T
	if values == nil || index >= values.Len() {
		return out, nil
	}
	err := values.Get(index, &out)
	return out, err
}

// ToValues encodes a handler result. Values and payload lists pass through.
func ToValues(dc DataConverter, value any) (Values, error) {
	switch v := value.(type) {
	case Values:
		return v, nil
	case command.Payloads:
		return NewEncodedValues(v, dc), nil
	}
	if value == nil {
		return NewEncodedValues(command.Payloads{}, dc), nil
	}
	return FromValues(dc, value)
}
