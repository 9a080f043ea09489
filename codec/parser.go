// Package codec maps wire frames onto commands and back.
package codec

import (
	"encoding/base64"
	"encoding/json"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

// Parser turns a decoded command object into a typed command.
type Parser struct {
	converter converter.DataConverter
}

// NewParser builds a parser. dc encodes success results that are not payload
// lists; nil selects the default converter.
func NewParser(dc converter.DataConverter) *Parser {
	if dc == nil {
		dc = converter.Default()
	}
	return &Parser{converter: dc}
}

// Parse classifies raw by its keys: "command" makes a request, "error" an
// error response and anything else a success response.
func (p *Parser) Parse(raw map[string]any) (command.Command, error) {
	rawID, ok := raw["id"]
	if !ok || rawID == nil {
		return nil, command.NewMalformedError(`An "id" command argument required`)
	}
	id, ok := command.ToUint32(normalize(rawID))
	if !ok {
		return nil, command.NewMalformedError("Command identifier must be a type of uint32")
	}

	if name, isRequest := raw["command"]; isRequest {
		return p.parseRequest(id, name, raw["params"])
	}
	if errField, isError := raw["error"]; isError {
		return p.parseError(id, errField)
	}
	return p.parseSuccess(id, raw["result"])
}

func (p *Parser) parseRequest(id uint32, rawName, rawParams any) (command.Command, error) {
	name, ok := rawName.(string)
	if !ok || name == "" {
		return nil, command.NewMalformedError("Request command must be a non-empty string")
	}

	params := map[string]any{}
	if rawParams != nil {
		m, ok := rawParams.(map[string]any)
		if !ok {
			return nil, command.NewMalformedError("Request params must be an object")
		}
		for k, v := range m {
			if command.IsPayloadParam(k) {
				payloads, err := decodePayloads(v)
				if err != nil {
					return nil, err
				}
				params[k] = payloads
				continue
			}
			params[k] = normalize(v)
		}
	}

	return command.NewRequest(id, name, params), nil
}

func (p *Parser) parseError(id uint32, rawErr any) (command.Command, error) {
	m, ok := rawErr.(map[string]any)
	if !ok {
		return nil, command.NewMalformedError(`An error response must contain an object "error" field`)
	}

	code, ok := command.ToUint32(normalize(m["code"]))
	if !ok {
		return nil, command.NewMalformedError("Error code must contain a valid uint32 value")
	}

	message, ok := m["message"].(string)
	if !ok || message == "" {
		return nil, command.NewMalformedError("Error message must contain a valid non-empty string value")
	}

	return command.NewErrorResponse(id, code, message, normalize(m["data"])), nil
}

func (p *Parser) parseSuccess(id uint32, rawResult any) (command.Command, error) {
	if rawResult == nil {
		return command.NewSuccessResponse(id, command.Payloads{}), nil
	}

	if _, isList := rawResult.([]any); isList {
		payloads, err := decodePayloads(rawResult)
		if err != nil {
			return nil, err
		}
		return command.NewSuccessResponse(id, payloads), nil
	}

	// a bare value: keep it as a single default encoded payload
	payload, err := p.converter.ToPayload(normalize(rawResult))
	if err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "Success result cannot be encoded", err, nil)
	}
	return command.NewSuccessResponse(id, command.Payloads{payload}), nil
}

func decodePayloads(raw any) (command.Payloads, error) {
	if raw == nil {
		return command.Payloads{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, command.NewMalformedError("Payloads must be a list")
	}

	out := make(command.Payloads, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, command.NewMalformedError("Payload #%d must be an object", i)
		}

		var payload command.Payload
		if rawMeta, ok := m["metadata"].(map[string]any); ok {
			payload.Metadata = make(map[string][]byte, len(rawMeta))
			for k, v := range rawMeta {
				b, err := decodeBytes(v)
				if err != nil {
					return nil, command.CloneError(command.ErrMalformedCommand,
						"Payload metadata must be base64 encoded", err, map[string]any{"key": k})
				}
				payload.Metadata[k] = b
			}
		}

		data, err := decodeBytes(m["data"])
		if err != nil {
			return nil, command.CloneError(command.ErrMalformedCommand, "Payload data must be base64 encoded", err, nil)
		}
		payload.Data = data
		out = append(out, payload)
	}
	return out, nil
}

// decodeBytes keeps null and empty apart: null decodes to nil, an empty
// string to an empty slice.
func decodeBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		if b == "" {
			return []byte{}, nil
		}
		return base64.StdEncoding.DecodeString(b)
	}
	return nil, command.NewMalformedError("expected a base64 string, got %T", v)
}

func encodePayloads(payloads command.Payloads) []any {
	out := make([]any, 0, len(payloads))
	for _, p := range payloads {
		entry := make(map[string]any, 2)
		if p.Metadata != nil {
			meta := make(map[string]any, len(p.Metadata))
			for k, v := range p.Metadata {
				meta[k] = encodeBytes(v)
			}
			entry["metadata"] = meta
		}
		if p.Data != nil {
			entry["data"] = encodeBytes(p.Data)
		}
		out = append(out, entry)
	}
	return out
}

func encodeBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return base64.StdEncoding.EncodeToString(b)
}

// normalize folds decoder specific scalar types onto int64, float64,
// string, bool, []any and map[string]any.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float32:
		return float64(n)
	case int, int8, int16, int32, uint, uint8, uint16, uint32:
		i, _ := command.ToInt64(n)
		return i
	case uint64:
		if i, ok := command.ToInt64(n); ok {
			return i
		}
		return n
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			if ks, ok := k.(string); ok {
				out[ks] = normalize(e)
			}
		}
		return out
	}
	return v
}
