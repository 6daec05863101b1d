package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/jrwynneiii/lhdecode/calibration"
	"github.com/jrwynneiii/lhdecode/capture"
	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/decode"
	"github.com/jrwynneiii/lhdecode/metrics"
	"github.com/jrwynneiii/lhdecode/ootx"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/jrwynneiii/lhdecode/synth"
	"github.com/jrwynneiii/lhdecode/tui"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var configFile = koanf.New(".")

func getConfigPath() string {
	if cli.Config != "" {
		return cli.Config
	}
	paths := []string{"/etc/lhdecode/config.hcl", "~/.config/lhdecode/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig() config.Conf {
	if err := configFile.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "LHDECODE_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "LHDECODE_"))
				k = strings.Replace(key, "_", ".", 1)
				log.Debugf("Found config env var: %s=%v", k, v)
				return k, v
			},
		}), nil)
	}
	return config.Load(configFile)
}

func main() {
	log.Info("Starting lhdecode")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	conf := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch flags.Command() {
	case "probe":
		if err := capture.LogSerialPorts(); err != nil {
			log.Fatalf("Could not probe serial ports: %v", err)
		}

	case "replay <file>":
		conf.Source.Driver = "file"
		conf.Source.Path = cli.Replay.File
		if err := replay(ctx, conf); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}

	case "synth <file>":
		if err := writeSynth(conf, cli.Synth.File, cli.Synth.Frames, cli.Synth.OOTX); err != nil {
			log.Fatalf("Could not write synthetic capture: %v", err)
		}

	case "monitor":
		if cli.Monitor.Metrics != "" {
			conf.Metrics.Listen = cli.Monitor.Metrics
		}
		monitor(ctx, conf)

	default:
		log.Info("Command not recognized")
	}
}

func replay(ctx context.Context, conf config.Conf) error {
	decoder, err := decode.New(conf, conf.Source.ChunkSize)
	if err != nil {
		return err
	}
	source := capture.New(conf.Source, decoder.FramesInput)
	if err := source.Connect(); err != nil {
		return err
	}
	defer source.Destroy()

	decoder.Publish = func(m decode.Measurement) {
		for s, sm := range m.Sensors {
			if sm.ValidCount == 0 {
				continue
			}
			log.Debugf("[replay] bs %d #%d sensor %d: x=%+.6f y=%+.6f", m.BaseStation, m.Sequence, s,
				sm.CorrectedAngles[pulse.AxisX], sm.CorrectedAngles[pulse.AxisY])
		}
	}

	start := time.Now()
	done := make(chan struct{})
	go func() {
		decoder.Run(ctx)
		close(done)
	}()
	srcErr := source.Start(ctx)
	<-done
	if srcErr != nil && !errors.Is(srcErr, context.Canceled) {
		return srcErr
	}

	snap := decoder.Snapshot()
	log.Infof("Decoded %s pulses (%s records, %d resyncs) in %s",
		humanize.Comma(int64(snap.Stats.Pulses)), humanize.Comma(int64(source.Reader.Records)),
		source.Reader.Resyncs, time.Since(start).Round(time.Millisecond))
	log.Infof("State: %s, misses: %s, frame errors: %d, incomplete axes: %d",
		snap.Status.State, humanize.Comma(int64(snap.Stats.Misses)), snap.Stats.FrameErrors, snap.Stats.IncompleteAxes)
	for bs := range snap.Published {
		line := fmt.Sprintf("Base station %d: %s measurements, %d lock losses", bs,
			humanize.Comma(int64(snap.Published[bs])), snap.Stats.LockLosses[bs])
		if p := snap.OOTX[bs].Payload; p != nil {
			line += fmt.Sprintf(", id %08x", p.ID)
		}
		log.Info(line)
	}
	for _, s := range decoder.Summary() {
		log.Infof("  bs %d sensor %d %s: mean %+.6f std %.2e over %d", s.BaseStation, s.Sensor, s.Axis, s.Mean, s.StdDev, s.Samples)
	}
	return nil
}

// demoPayload is the calibration a synthetic V1 base station broadcasts.
func demoPayload(bs int) *ootx.Payload {
	sign := float32(1 - 2*bs)
	return &ootx.Payload{
		FirmwareVersion: 0x0276,
		ID:              0x4c480000 | uint32(bs),
		Phase:           [2]float32{0.0125 * sign, -0.00625},
		Tilt:            [2]float32{-0.0025, 0.003 * sign},
		HardwareVersion: 9,
		Curve:           [2]float32{0.0015, -0.001},
		AccelDir:        [3]int8{0, 127, 0},
		GibPhase:        [2]float32{0.5, -1.25},
		GibMag:          [2]float32{0.002, 0.0015},
		Mode:            byte(bs),
	}
}

func writeSynth(conf config.Conf, path string, frames int, withOOTX bool) error {
	gen, err := pulse.ParseGeneration(conf.Processor.Generation)
	if err != nil {
		return err
	}
	opts := synth.Options{
		Frames:   frames,
		Channels: [pulse.NumBaseStations]uint8{conf.V2.ChannelBS0, conf.V2.ChannelBS1},
	}
	var stream []pulse.Frame
	switch gen {
	case pulse.GenerationV2:
		stream = synth.V2Frames(synth.DefaultScene(), opts)
	default:
		if withOOTX {
			for bs := range opts.OOTX {
				payload := demoPayload(bs)
				opts.OOTX[bs] = ootx.Encode(payload.Marshal())
				// Round trip through the wire format so the decoder inverts
				// exactly the model it will receive.
				parsed, err := ootx.ParseV1(payload.Marshal())
				if err != nil {
					return err
				}
				opts.Distort[bs] = calibration.FromPayload(parsed, conf.Calibration)
			}
		}
		stream = synth.V1Frames(synth.DefaultScene(), opts)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	w := capture.NewWriter(f)
	for i := range stream {
		if err := w.Write(&stream[i]); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Infof("Wrote %s %s pulses to %s", humanize.Comma(int64(len(stream))), gen, path)
	return nil
}

func monitor(ctx context.Context, conf config.Conf) {
	decoder, err := decode.New(conf, conf.Source.ChunkSize)
	if err != nil {
		log.Fatalf("Could not create decoder: %v", err)
	}
	source := capture.New(conf.Source, decoder.FramesInput)
	if err := source.Connect(); err != nil {
		log.Fatalf("Could not open pulse source: %v", err)
	}
	defer source.Destroy()

	var m *metrics.Metrics
	if conf.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		go func() {
			interval := time.Duration(conf.Tui.RefreshMs) * time.Millisecond
			if err := metrics.Serve(ctx, conf.Metrics.Listen, reg, m, decoder.Snapshot, interval); err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	go decoder.Run(ctx)
	go func() {
		if err := source.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Pulse source stopped: %v", err)
		}
	}()

	tui.StartUI(decoder, m, conf.Tui)
}
