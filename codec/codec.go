package codec

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/failure"
)

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Codec encodes a batch of commands into one message body and back.
type Codec interface {
	Name() string
	Encode(cmds []command.Command) ([]byte, error)
	Decode(body []byte) ([]command.Command, error)
}

// GetCodec returns the codec registered under name, JSON when unknown.
func GetCodec(name string, dc converter.DataConverter) Codec {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameMsgpack:
		return NewMsgpack(dc)
	}
	return NewJSON(dc)
}

// JSONCodec is the textual wire format.
type JSONCodec struct {
	parser *Parser
}

func NewJSON(dc converter.DataConverter) *JSONCodec {
	return &JSONCodec{parser: NewParser(dc)}
}

func (c *JSONCodec) Name() string { return NameJSON }

func (c *JSONCodec) Encode(cmds []command.Command) ([]byte, error) {
	frames, err := toFrames(cmds)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frames)
}

func (c *JSONCodec) Decode(body []byte) ([]command.Command, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var frames []map[string]any
	if err := dec.Decode(&frames); err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "Message body must be a list of command objects", err, nil)
	}
	return fromFrames(c.parser, frames)
}

// MsgpackCodec uses the same field layout as JSON in a binary envelope.
type MsgpackCodec struct {
	parser *Parser
}

func NewMsgpack(dc converter.DataConverter) *MsgpackCodec {
	return &MsgpackCodec{parser: NewParser(dc)}
}

func (c *MsgpackCodec) Name() string { return NameMsgpack }

func (c *MsgpackCodec) Encode(cmds []command.Command) ([]byte, error) {
	frames, err := toFrames(cmds)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(frames)
}

func (c *MsgpackCodec) Decode(body []byte) ([]command.Command, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var raw []any
	if err := msgpack.Unmarshal(body, &raw); err != nil {
		return nil, command.CloneError(command.ErrMalformedCommand, "Message body must be a list of command objects", err, nil)
	}

	frames := make([]map[string]any, 0, len(raw))
	for i, entry := range raw {
		m, ok := normalize(entry).(map[string]any)
		if !ok {
			return nil, command.NewMalformedError("Command #%d must be an object", i)
		}
		frames = append(frames, m)
	}
	return fromFrames(c.parser, frames)
}

func fromFrames(p *Parser, frames []map[string]any) ([]command.Command, error) {
	out := make([]command.Command, 0, len(frames))
	for _, frame := range frames {
		if frame == nil {
			return nil, command.NewMalformedError("Command must be an object")
		}
		cmd, err := p.Parse(frame)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

func toFrames(cmds []command.Command) ([]map[string]any, error) {
	frames := make([]map[string]any, 0, len(cmds))
	for _, cmd := range cmds {
		frame, err := ToFrame(cmd)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// ToFrame renders a single command as a wire object.
func ToFrame(cmd command.Command) (map[string]any, error) {
	switch c := cmd.(type) {
	case *command.Request:
		params := map[string]any{}
		for k, v := range c.Params() {
			if payloads, ok := v.(command.Payloads); ok {
				params[k] = encodePayloads(payloads)
				continue
			}
			params[k] = v
		}
		return map[string]any{
			"id":      c.ID(),
			"command": c.Name(),
			"params":  params,
		}, nil
	case *command.SuccessResponse:
		return map[string]any{
			"id":     c.ID(),
			"result": encodePayloads(c.Result()),
		}, nil
	case *command.ErrorResponse:
		errField := map[string]any{
			"code":    c.Code(),
			"message": c.Message(),
		}
		if data := c.Data(); data != nil {
			if info, ok := data.(*failure.Info); ok {
				data = info.ToMap()
			}
			errField["data"] = data
		}
		return map[string]any{
			"id":    c.ID(),
			"error": errField,
		}, nil
	}
	return nil, command.NewMalformedError("unsupported command type %T", cmd)
}
