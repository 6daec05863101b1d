package main

var cli struct {
	Verbose bool   `help:"Prints debug output by default"`
	Profile bool   `help:"Output a pprof profile"`
	Config  string `help:"Path to an HCL config file" type:"path"`
	Probe   struct {
	} `cmd:"" help:"List the serial ports a sensor deck may be attached to"`
	Replay struct {
		File string `arg:"" help:"Capture file to decode" type:"existingfile"`
	} `cmd:"" help:"Decode a capture file and print a summary"`
	Synth struct {
		File   string `arg:"" help:"Capture file to write"`
		Frames int    `help:"V1 frames or V2 rotations to generate" default:"2000"`
		OOTX   bool   `name:"ootx" help:"Broadcast a calibration payload from each V1 base station"`
	} `cmd:"" help:"Write a synthetic capture for the configured base station generation"`
	Monitor struct {
		Metrics string `help:"Address to serve Prometheus metrics on, overrides metrics.listen"`
	} `cmd:"" help:"Starts the TUI on the configured pulse source"`
}
