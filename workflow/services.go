package workflow

import (
	command "github.com/goliatone/go-command-worker"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/loop"
	"github.com/goliatone/go-command-worker/transport"
)

// Services are the worker wide collaborators shared by every process.
type Services struct {
	Loop      *loop.Loop
	Client    transport.Client
	IDs       command.IDGenerator
	Env       *Environment
	Converter converter.DataConverter
	Logger    command.Logger
}

// Forgetter is implemented by clients able to drop a sent request without
// settling it.
type Forgetter interface {
	Forget(cmd command.Command) bool
}

func (s *Services) normalize() {
	if s.Loop == nil {
		s.Loop = loop.New()
	}
	if s.Env == nil {
		s.Env = NewEnvironment()
	}
	if s.Converter == nil {
		s.Converter = converter.Default()
	}
	s.Logger = command.NormalizeLogger(s.Logger)
}
