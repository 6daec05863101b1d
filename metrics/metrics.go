// Package metrics exports decoder state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/lhdecode/decode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	pulses               prometheus.Gauge
	misses               prometheus.Gauge
	syncClusters         prometheus.Gauge
	frameErrors          prometheus.Gauge
	incompleteAxes       prometheus.Gauge
	classificationErrors prometheus.Gauge
	measurements         *prometheus.GaugeVec // raw axis writes per base station
	published            *prometheus.GaugeVec
	locked               *prometheus.GaugeVec
	lockLosses           *prometheus.GaugeVec
	frameWidth           *prometheus.GaugeVec // V1 rotor revolution in ticks
	ootxFrames           *prometheus.GaugeVec
	ootxCRCErrors        *prometheus.GaugeVec
	angle                *prometheus.GaugeVec
	jitter               *prometheus.GaugeVec

	mu sync.Mutex
}

// New creates the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	bs := []string{"basestation"}
	return &Metrics{
		pulses: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_pulses_total",
			Help: "Pulses fed to the processor",
		}),
		misses: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_misses_total",
			Help: "Pulses that could not be classified",
		}),
		syncClusters: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_sync_clusters_total",
			Help: "V1 sync clusters closed",
		}),
		frameErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_frame_errors_total",
			Help: "Frames dropped because the base station could not be told apart",
		}),
		incompleteAxes: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_incomplete_axes_total",
			Help: "Axes written without every sensor",
		}),
		classificationErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "lhdecode_classification_errors_total",
			Help: "Pulses that produced a classification error",
		}),
		measurements: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_axis_measurements_total",
			Help: "Sweep axes written per base station",
		}, bs),
		published: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_published_total",
			Help: "Measurements published per base station",
		}, bs),
		locked: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_locked",
			Help: "1 while the base station is synchronized",
		}, bs),
		lockLosses: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_lock_losses_total",
			Help: "Times the base station lost lock",
		}, bs),
		frameWidth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_frame_width_ticks",
			Help: "Smoothed V1 rotor revolution",
		}, []string{"basestation", "axis"}),
		ootxFrames: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_ootx_frames_total",
			Help: "OOTX payloads received with a valid CRC",
		}, bs),
		ootxCRCErrors: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_ootx_crc_errors_total",
			Help: "OOTX payloads dropped on CRC mismatch",
		}, bs),
		angle: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_angle_radians",
			Help: "Last corrected sweep angle",
		}, []string{"basestation", "sensor", "axis"}),
		jitter: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lhdecode_angle_jitter_radians",
			Help: "Smoothed standard deviation of the corrected sweep angle",
		}, []string{"basestation", "sensor", "axis"}),
	}
}

// Update copies a decoder snapshot into the collectors.
func (m *Metrics) Update(snap decode.Snapshot) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pulses.Set(float64(snap.Stats.Pulses))
	m.misses.Set(float64(snap.Stats.Misses))
	m.syncClusters.Set(float64(snap.Stats.SyncClusters))
	m.frameErrors.Set(float64(snap.Stats.FrameErrors))
	m.incompleteAxes.Set(float64(snap.Stats.IncompleteAxes))
	m.classificationErrors.Set(float64(snap.ClassificationErrors))

	for bs := range snap.Published {
		label := strconv.Itoa(bs)
		m.measurements.WithLabelValues(label).Set(float64(snap.Stats.Measurements[bs]))
		m.published.WithLabelValues(label).Set(float64(snap.Published[bs]))
		m.lockLosses.WithLabelValues(label).Set(float64(snap.Stats.LockLosses[bs]))
		m.ootxFrames.WithLabelValues(label).Set(float64(snap.OOTX[bs].Frames))
		m.ootxCRCErrors.WithLabelValues(label).Set(float64(snap.OOTX[bs].CRCErrors))
		locked := 0.0
		if snap.Status.Locked[bs] {
			locked = 1
		}
		m.locked.WithLabelValues(label).Set(locked)

		for axis, w := range snap.Status.FrameWidth[bs] {
			m.frameWidth.WithLabelValues(label, axisLabel(axis)).Set(w)
		}
		for s, sm := range snap.Last[bs].Sensors {
			for axis := range sm.CorrectedAngles {
				labels := []string{label, strconv.Itoa(s), axisLabel(axis)}
				m.jitter.WithLabelValues(labels...).Set(snap.Jitter[bs][s][axis])
				if sm.ValidCount > 0 {
					m.angle.WithLabelValues(labels...).Set(sm.CorrectedAngles[axis])
				}
			}
		}
	}
}

func axisLabel(axis int) string {
	if axis == 0 {
		return "x"
	}
	return "y"
}

// Serve exposes reg on listen and refreshes the collectors from snapshot
// every interval until ctx is cancelled.
func Serve(ctx context.Context, listen string, reg *prometheus.Registry, m *Metrics, snapshot func() decode.Snapshot, interval time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Update(snapshot())
			case <-ctx.Done():
				shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				srv.Shutdown(shutdown)
				return
			}
		}
	}()

	log.Infof("Serving metrics on %s/metrics", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
