package main

import (
	"encoding/base64"

	"go.uber.org/multierr"

	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
)

// commandView is the human readable shape of one command, with payload
// lists shown as plain values.
type commandView struct {
	ID      uint32         `yaml:"id"`
	Command string         `yaml:"command,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
	Result  []any          `yaml:"result,omitempty"`
	Error   *errorView     `yaml:"error,omitempty"`
}

type errorView struct {
	Code    uint32 `yaml:"code"`
	Message string `yaml:"message"`
	Data    any    `yaml:"data,omitempty"`
}

func toViews(cmds []command.Command, dc converter.DataConverter) []commandView {
	views := make([]commandView, 0, len(cmds))
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *command.Request:
			params := c.Params()
			for k, v := range params {
				if p, ok := v.(command.Payloads); ok {
					params[k] = payloadValues(p, dc)
				}
			}
			views = append(views, commandView{ID: c.ID(), Command: c.Name(), Params: params})
		case *command.SuccessResponse:
			views = append(views, commandView{ID: c.ID(), Result: payloadValues(c.Result(), dc)})
		case *command.ErrorResponse:
			views = append(views, commandView{ID: c.ID(), Error: &errorView{
				Code:    c.Code(),
				Message: c.Message(),
				Data:    c.Data(),
			}})
		}
	}
	return views
}

// fromViews builds commands out of views and reports every invalid view,
// not only the first.
func fromViews(views []commandView, dc converter.DataConverter) ([]command.Command, error) {
	cmds := make([]command.Command, 0, len(views))
	var errs error
	for i, v := range views {
		cmd, err := fromView(i, v, dc)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	if errs != nil {
		return nil, errs
	}
	return cmds, nil
}

func fromView(i int, v commandView, dc converter.DataConverter) (command.Command, error) {
	switch {
	case v.Command != "":
		params := make(map[string]any, len(v.Params))
		for k, value := range v.Params {
			if !command.IsPayloadParam(k) {
				params[k] = value
				continue
			}
			list, _ := value.([]any)
			p, err := dc.ToPayloads(list...)
			if err != nil {
				return nil, err
			}
			params[k] = p
		}
		req := command.NewRequest(v.ID, v.Command, params)
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return req, nil
	case v.Error != nil:
		if v.Error.Message == "" {
			return nil, command.NewMalformedError("command #%d: error message must not be empty", i)
		}
		return command.NewErrorResponse(v.ID, v.Error.Code, v.Error.Message, v.Error.Data), nil
	}
	p, err := dc.ToPayloads(v.Result...)
	if err != nil {
		return nil, err
	}
	return command.NewSuccessResponse(v.ID, p), nil
}

// payloadValues decodes payloads for display. Payloads the converter cannot
// read are shown as base64.
func payloadValues(p command.Payloads, dc converter.DataConverter) []any {
	out := make([]any, 0, len(p))
	for _, payload := range p {
		var v any
		if err := dc.FromPayload(payload, &v); err != nil {
			out = append(out, base64.StdEncoding.EncodeToString(payload.Data))
			continue
		}
		out = append(out, v)
	}
	return out
}
