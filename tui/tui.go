package tui

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/lhdecode/config"
	"github.com/jrwynneiii/lhdecode/decode"
	"github.com/jrwynneiii/lhdecode/metrics"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
)

const plotPoints = 120

var LogOut *tview.TextView

// missRate is the share of pulses that could not be classified, in percent.
func missRate(s *decode.Snapshot) float64 {
	if s.Stats.Pulses == 0 {
		return 0
	}
	return 100 * float64(s.Stats.Misses) / float64(s.Stats.Pulses)
}

// incompleteRate is the share of written axes that missed a sensor.
func incompleteRate(s *decode.Snapshot) float64 {
	total := s.Stats.Measurements[0] + s.Stats.Measurements[1]
	if total == 0 {
		return 0
	}
	return 100 * float64(s.Stats.IncompleteAxes) / float64(total)
}

func pushPoint(series []float64, v float64) []float64 {
	series = append(series, v)
	if len(series) > plotPoints {
		series = series[len(series)-plotPoints:]
	}
	return series
}

func StartUI(decoder *decode.Decoder, m *metrics.Metrics, tuiConf config.TuiConf) {
	app := tview.NewApplication()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	sensorData := &SensorTableData{}
	lockData := &LockTableData{}
	sensorTable := tview.NewTable().SetContent(sensorData)
	lockTable := tview.NewTable().SetContent(lockData)

	anglePlot := tvxwidgets.NewPlot()
	anglePlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue, tcell.ColorOrange})
	anglePlot.SetMarker(tvxwidgets.PlotMarkerBraille)

	missGauge := tvxwidgets.NewUtilModeGauge()
	missGauge.SetLabel("Unclassified pulses:   ")
	missGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	missGauge.SetWarnPercentage(tuiConf.MissWarnPct)
	missGauge.SetCritPercentage(tuiConf.MissCritPct)
	missGauge.SetEmptyColor(tcell.ColorBlack)
	missGauge.SetBorder(false)

	incompleteGauge := tvxwidgets.NewUtilModeGauge()
	incompleteGauge.SetLabel("Incomplete axes:       ")
	incompleteGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	incompleteGauge.SetWarnPercentage(tuiConf.MissWarnPct)
	incompleteGauge.SetCritPercentage(tuiConf.MissCritPct)
	incompleteGauge.SetEmptyColor(tcell.ColorBlack)
	incompleteGauge.SetBorder(false)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(missGauge, 0, 1, false)
	gaugeBox.AddItem(incompleteGauge, 0, 1, false)
	gaugeBox.SetTitle("Pulse Stats")
	gaugeBox.SetBorder(true)

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})

	LogOut.SetBorder(true).SetTitle("Log Output")
	if tuiConf.EnableLogOutput {
		log.SetOutput(LogOut)
	}
	sensorTable.SetSelectable(false, false).SetBorder(true).SetTitle("Sensor Angles")
	lockTable.SetSelectable(false, false).SetBorder(false)

	decoderStats := tview.NewFlex().SetDirection(tview.FlexRow)
	decoderStats.AddItem(lockTable, 0, 1, false)
	decoderStats.SetBorder(true)
	decoderStats.SetTitle("Decoder Status")

	anglePlot.SetBorder(true)
	anglePlot.SetTitle("Sensor 0, base station 0 (x, y)")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(sensorTable, 0, 3, false)
	leftCol.AddItem(decoderStats, 0, 2, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 1, false)
	rightCol.AddItem(anglePlot, 0, 2, false)
	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 3, false)
	page.AddItem(rightCol, 0, 4, false)

	go func() {
		var xs, ys []float64
		var lastSeq uint64
		for {
			snap := decoder.Snapshot()
			setSnapshot(snap)
			m.Update(snap)

			missGauge.SetValue(missRate(&snap))
			incompleteGauge.SetValue(incompleteRate(&snap))

			last := &snap.Last[0]
			if last.Sequence != lastSeq {
				lastSeq = last.Sequence
				sm := &last.Sensors[0]
				if sm.HasAxis(pulse.AxisX) && sm.HasAxis(pulse.AxisY) {
					xs = pushPoint(xs, sm.CorrectedAngles[pulse.AxisX])
					ys = pushPoint(ys, sm.CorrectedAngles[pulse.AxisY])
					anglePlot.SetData([][]float64{xs, ys})
				}
			}

			app.Draw()
			time.Sleep(time.Duration(tuiConf.RefreshMs) * time.Millisecond)
		}
	}()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Could not start UI: %v", err)
	}
}
