package main

import (
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-command-worker/codec"
	"github.com/goliatone/go-command-worker/converter"
	"github.com/goliatone/go-command-worker/worker"
)

type DecodeCmd struct {
	Codec string `default:"json" enum:"json,msgpack" help:"Wire codec of the input."`
	File  string `arg:"" optional:"" help:"Batch file, stdin when omitted."`
}

func (c *DecodeCmd) Run(g *Globals) error {
	body, err := readInput(g, c.File)
	if err != nil {
		return err
	}
	dc := converter.Default()
	cmds, err := codec.GetCodec(c.Codec, dc).Decode(body)
	if err != nil {
		return err
	}
	return writeYAML(g, toViews(cmds, dc))
}

type EncodeCmd struct {
	Codec string `default:"json" enum:"json,msgpack" help:"Wire codec of the output."`
	File  string `arg:"" optional:"" help:"YAML or JSON command list, stdin when omitted."`
}

func (c *EncodeCmd) Run(g *Globals) error {
	body, err := readInput(g, c.File)
	if err != nil {
		return err
	}
	var views []commandView
	if err := yaml.Unmarshal(body, &views); err != nil {
		return err
	}
	dc := converter.Default()
	cmds, err := fromViews(views, dc)
	if err != nil {
		return err
	}
	out, err := codec.GetCodec(c.Codec, dc).Encode(cmds)
	if err != nil {
		return err
	}
	_, err = g.Out.Write(out)
	return err
}

type ConfigCmd struct {
	File string `arg:"" help:"Worker config file."`
}

func (c *ConfigCmd) Run(g *Globals) error {
	cfg, err := worker.LoadConfig(c.File)
	if err != nil {
		return err
	}
	return writeYAML(g, cfg)
}

func writeYAML(g *Globals, v any) error {
	enc := yaml.NewEncoder(g.Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
