package pulse

type HistoryEntry struct {
	Timestamp uint32
	Width     uint16
}

// History is a fixed ring of the most recent pulses seen by one sensor.
type History struct {
	entries [HistoryLength]HistoryEntry
	idx     int
	n       int
}

// Push stores e, overwriting the oldest entry once the ring is full.
func (h *History) Push(e HistoryEntry) {
	h.entries[h.idx] = e
	h.idx = (h.idx + 1) % HistoryLength
	if h.n < HistoryLength {
		h.n++
	}
}

func (h *History) Len() int {
	return h.n
}

func (h *History) Full() bool {
	return h.n == HistoryLength
}

// At returns the i-th most recent entry, 0 being the newest.
func (h *History) At(i int) HistoryEntry {
	return h.entries[(h.idx-1-i+2*HistoryLength)%HistoryLength]
}
