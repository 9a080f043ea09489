// Command workerctl inspects wire batches and worker configuration files.
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
)

type Globals struct {
	Out io.Writer
	In  io.Reader
}

type CLI struct {
	Decode DecodeCmd `cmd:"" help:"Print a wire batch as YAML with payloads decoded."`
	Encode EncodeCmd `cmd:"" help:"Build a wire batch from a YAML or JSON command list."`
	Config ConfigCmd `cmd:"" help:"Validate a worker config and print the effective values."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("workerctl"),
		kong.Description("Debugging tool for workflow worker messages."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&Globals{Out: os.Stdout, In: os.Stdin}))
}

func readInput(g *Globals, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(g.In)
	}
	return os.ReadFile(path)
}
