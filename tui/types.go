package tui

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/lhdecode/decode"
	"github.com/jrwynneiii/lhdecode/pulse"
	"github.com/rivo/tview"
)

type SensorTableData struct {
	tview.TableContentReadOnly
}

type LockTableData struct {
	tview.TableContentReadOnly
}

// Latest decoder snapshot, refreshed by the update loop and read by the tables.
var (
	snapMu  sync.RWMutex
	current decode.Snapshot
)

func setSnapshot(s decode.Snapshot) {
	snapMu.Lock()
	current = s
	snapMu.Unlock()
}

func snapshot() decode.Snapshot {
	snapMu.RLock()
	defer snapMu.RUnlock()
	return current
}

func lockCell(locked bool) *tview.TableCell {
	if locked {
		return tview.NewTableCell("locked").SetTextColor(tcell.ColorGreen)
	}
	return tview.NewTableCell("searching").SetTextColor(tcell.ColorRed)
}

func (l *LockTableData) GetRowCount() int {
	return 6
}

func (l *LockTableData) GetColumnCount() int {
	return 2
}

func (l *LockTableData) GetCell(row, column int) *tview.TableCell {
	s := snapshot()
	switch row {
	case 0:
		if column == 0 {
			return tview.NewTableCell("State:")
		}
		color := tcell.ColorGreen
		if s.Status.State != pulse.Synchronized {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%s (%s)", s.Status.State, s.Status.Generation)).SetTextColor(color)
	case 1, 2:
		bs := row - 1
		if column == 0 {
			return tview.NewTableCell(fmt.Sprintf("Base station %d:", bs))
		}
		return lockCell(s.Status.Locked[bs])
	case 3:
		if column == 0 {
			return tview.NewTableCell("Pulses:")
		}
		return tview.NewTableCell(humanize.Comma(int64(s.Stats.Pulses)))
	case 4:
		if column == 0 {
			return tview.NewTableCell("Misses:")
		}
		return tview.NewTableCell(humanize.Comma(int64(s.Stats.Misses)))
	case 5:
		if column == 0 {
			return tview.NewTableCell("Frame errors:")
		}
		return tview.NewTableCell(humanize.Comma(int64(s.Stats.FrameErrors + s.ClassificationErrors)))
	}
	return tview.NewTableCell("ERROR")
}

// One row per sensor and base station.
func (d *SensorTableData) GetRowCount() int {
	return 1 + pulse.NumSensors*pulse.NumBaseStations
}

func (d *SensorTableData) GetColumnCount() int {
	return 6
}

func (d *SensorTableData) GetCell(row, column int) *tview.TableCell {
	if row == 0 {
		switch column {
		case 0:
			return tview.NewTableCell("[lightskyblue]Station ")
		case 1:
			return tview.NewTableCell("[white]Sensor ")
		case 2:
			return tview.NewTableCell("[green]X (rad) ")
		case 3:
			return tview.NewTableCell("[green]Y (rad) ")
		case 4:
			return tview.NewTableCell("[yellow]Jitter X ")
		case 5:
			return tview.NewTableCell("[yellow]Jitter Y")
		}
		return tview.NewTableCell("ERROR")
	}

	s := snapshot()
	bs := (row - 1) / pulse.NumSensors
	sensor := (row - 1) % pulse.NumSensors
	m := s.Last[bs].Sensors[sensor]
	angle := func(axis pulse.Axis) *tview.TableCell {
		if !m.HasAxis(axis) {
			return tview.NewTableCell("[red]-")
		}
		return tview.NewTableCell(fmt.Sprintf("[green]%+.5f", m.CorrectedAngles[axis]))
	}
	switch column {
	case 0:
		return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%d", bs))
	case 1:
		return tview.NewTableCell(fmt.Sprintf("[white]%d", sensor))
	case 2:
		return angle(pulse.AxisX)
	case 3:
		return angle(pulse.AxisY)
	case 4, 5:
		return tview.NewTableCell(fmt.Sprintf("[yellow]%.2e", s.Jitter[bs][sensor][column-4]))
	}
	return tview.NewTableCell("ERROR")
}
