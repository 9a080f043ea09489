package command

import (
	"fmt"
	"sort"
	"strings"
)

// Command is a single correlated unit exchanged with the orchestrator.
type Command interface {
	ID() uint32
}

// Payload is one opaque encoded value. Metadata key "encoding" names the
// converter that produced Data.
type Payload struct {
	Metadata map[string][]byte `json:"metadata,omitempty"`
	Data     []byte            `json:"data,omitempty"`
}

// Encoding returns the encoding metadata value, empty when missing.
func (p Payload) Encoding() string {
	if p.Metadata == nil {
		return ""
	}
	return string(p.Metadata[MetadataEncoding])
}

// Payloads is an ordered list of payloads.
type Payloads []Payload

const MetadataEncoding = "encoding"

// Param keys that carry payload lists on the wire.
const (
	ParamArgs   = "args"
	ParamInput  = "input"
	ParamResult = "result"
)

// PayloadParams lists the request param keys decoded as payload lists.
var PayloadParams = []string{ParamArgs, ParamInput, ParamResult}

// IsPayloadParam reports whether key is carried as a payload list.
func IsPayloadParam(key string) bool {
	for _, k := range PayloadParams {
		if k == key {
			return true
		}
	}
	return false
}

// Request asks the other side to do something. Requests are immutable once
// built; Params returns a copy.
type Request struct {
	id          uint32
	name        string
	params      map[string]any
	cancellable bool
}

// NewRequest builds a request with an explicit id. Payload lists belong in
// params under one of PayloadParams.
func NewRequest(id uint32, name string, params map[string]any) *Request {
	return &Request{
		id:          id,
		name:        name,
		params:      cloneParams(params),
		cancellable: isCancellableName(name),
	}
}

func (r *Request) ID() uint32 { return r.id }

func (r *Request) Name() string { return r.name }

// Params returns a shallow copy of the request params.
func (r *Request) Params() map[string]any {
	return cloneParams(r.params)
}

// Param returns a single param value.
func (r *Request) Param(key string) (any, bool) {
	v, ok := r.params[key]
	return v, ok
}

// Payloads returns the first payload list found under PayloadParams.
func (r *Request) Payloads() Payloads {
	for _, key := range PayloadParams {
		if p, ok := r.params[key].(Payloads); ok {
			return p
		}
	}
	return nil
}

// IsCancellable reports whether a Cancel request may target this request.
func (r *Request) IsCancellable() bool { return r.cancellable }

// Validate checks the minimal shape of a request.
func (r *Request) Validate() error {
	if r == nil {
		return NewMalformedError("nil request")
	}
	if strings.TrimSpace(r.name) == "" {
		return NewMalformedError("Request command must be a non-empty string")
	}
	if r.id > MaxID {
		return NewMalformedError("Command identifier must be a type of uint32")
	}
	return nil
}

func (r *Request) String() string {
	keys := make([]string, 0, len(r.params))
	for k := range r.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s#%d%v", r.name, r.id, keys)
}

// SuccessResponse carries the result of a previously issued request.
type SuccessResponse struct {
	id     uint32
	result Payloads
}

func NewSuccessResponse(id uint32, result Payloads) *SuccessResponse {
	return &SuccessResponse{id: id, result: result}
}

func (r *SuccessResponse) ID() uint32 { return r.id }

func (r *SuccessResponse) Result() Payloads { return r.result }

// ErrorResponse carries a failure for a previously issued request. Data is
// usually an encoded failure object.
type ErrorResponse struct {
	id      uint32
	code    uint32
	message string
	data    any
}

func NewErrorResponse(id uint32, code uint32, message string, data any) *ErrorResponse {
	return &ErrorResponse{id: id, code: code, message: message, data: data}
}

func (r *ErrorResponse) ID() uint32 { return r.id }

func (r *ErrorResponse) Code() uint32 { return r.code }

func (r *ErrorResponse) Message() string { return r.message }

func (r *ErrorResponse) Data() any { return r.data }

func (r *ErrorResponse) Error() string {
	return fmt.Sprintf("command %d failed with code %d: %s", r.id, r.code, r.message)
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
