package config

import (
	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/v2"
)

type ProcessorConf struct {
	Generation string `koanf:"generation"`
}

// V1Conf holds the noise-tolerance thresholds of the V1 sync state machine.
// All durations are in 24 MHz capture ticks.
type V1Conf struct {
	ClusterWindow       uint32 `koanf:"cluster_window"`
	FrameTolerance      uint32 `koanf:"frame_tolerance"`
	SeparationTolerance uint32 `koanf:"separation_tolerance"`
	LockRunLength       int    `koanf:"lock_run_length"`
	LockLossMisses      int    `koanf:"lock_loss_misses"`
	SweepWindowStart    uint32 `koanf:"sweep_window_start"`
	SweepWindowEnd      uint32 `koanf:"sweep_window_end"`
	FrameWidthMin       uint32 `koanf:"frame_width_min"`
	FrameWidthMax       uint32 `koanf:"frame_width_max"`
	MaxReferenceAge     int    `koanf:"max_reference_age"`
}

type V2Conf struct {
	SensorWindow uint32 `koanf:"sensor_window"`
	MaxBlockSkew uint32 `koanf:"max_block_skew"`
	ChannelBS0   uint8  `koanf:"channel_bs0"`
	ChannelBS1   uint8  `koanf:"channel_bs1"`
}

type SourceConf struct {
	Driver    string `koanf:"driver"`
	Path      string `koanf:"path"`
	BaudRate  int    `koanf:"baud_rate"`
	ChunkSize uint   `koanf:"chunk_size"`
}

type TuiConf struct {
	RefreshMs       int     `koanf:"refresh_ms"`
	MissWarnPct     float64 `koanf:"miss_warn_pct"`
	MissCritPct     float64 `koanf:"miss_crit_pct"`
	EnableLogOutput bool    `koanf:"enable_log_output"`
}

type MetricsConf struct {
	Listen string `koanf:"listen"`
}

// CalibrationConf carries the mounting trim added to corrected angles,
// indexed sensor then axis, in radians.
type CalibrationConf struct {
	SensorTrim [4][2]float64 `koanf:"sensor_trim"`
}

type Conf struct {
	Processor   ProcessorConf   `koanf:"processor"`
	V1          V1Conf          `koanf:"v1"`
	V2          V2Conf          `koanf:"v2"`
	Source      SourceConf      `koanf:"source"`
	Tui         TuiConf         `koanf:"tui"`
	Metrics     MetricsConf     `koanf:"metrics"`
	Calibration CalibrationConf `koanf:"calibration"`
}

// DefaultV1 returns thresholds tuned for lighthouse V1 base stations in A/B
// mode: 8.333 ms frames, sync pulses 400 us apart.
func DefaultV1() V1Conf {
	return V1Conf{
		ClusterWindow:       1200,
		FrameTolerance:      2000,
		SeparationTolerance: 1200,
		LockRunLength:       3,
		LockLossMisses:      4,
		SweepWindowStart:    13000,
		SweepWindowEnd:      196000,
		FrameWidthMin:       390000,
		FrameWidthMax:       410000,
		MaxReferenceAge:     40,
	}
}

func DefaultV2() V2Conf {
	return V2Conf{
		SensorWindow: 10000,
		MaxBlockSkew: 64,
		ChannelBS0:   0,
		ChannelBS1:   1,
	}
}

func Default() Conf {
	return Conf{
		Processor: ProcessorConf{Generation: "v1"},
		V1:        DefaultV1(),
		V2:        DefaultV2(),
		Source: SourceConf{
			Driver:    "file",
			BaudRate:  230400,
			ChunkSize: 256,
		},
		Tui: TuiConf{
			RefreshMs:       250,
			MissWarnPct:     20,
			MissCritPct:     50,
			EnableLogOutput: true,
		},
	}
}

// Load overlays whatever keys are present in configFile onto the defaults.
func Load(configFile *koanf.Koanf) Conf {
	conf := Default()
	for path, dst := range map[string]any{
		"processor":   &conf.Processor,
		"v1":          &conf.V1,
		"v2":          &conf.V2,
		"source":      &conf.Source,
		"tui":         &conf.Tui,
		"metrics":     &conf.Metrics,
		"calibration": &conf.Calibration,
	} {
		if !configFile.Exists(path) {
			continue
		}
		if err := configFile.Unmarshal(path, dst); err != nil {
			log.Errorf("Could not read %s config, using defaults: %v", path, err)
		}
	}
	log.Debugf("Loaded config: %##v", conf)
	return conf
}
