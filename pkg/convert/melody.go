package convert

import (
	"sort"
)

// Melody event values. Values >= 0 are MIDI pitches.
const (
	melodyNoEvent = -2
	melodyNoteOff = -1
)

// melody is a monophonic line of events, one per quantized step, starting at
// startStep in the source sequence.
type melody struct {
	events      []int
	startStep   int
	stepsPerBar int
}

func (m *melody) endStep() int {
	return m.startStep + len(m.events)
}

func (m *melody) setLength(n int) {
	for len(m.events) < n {
		m.events = append(m.events, melodyNoEvent)
	}
	m.events = m.events[:n]
}

func (m *melody) addNote(pitch, start, end int) {
	m.setLength(end + 1)
	m.events[start] = pitch
	m.events[end] = melodyNoteOff
	for i := start + 1; i < end; i++ {
		m.events[i] = melodyNoEvent
	}
}

func (m *melody) lastOnOff() (on, off int) {
	off = len(m.events)
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i] == melodyNoteOff {
			off = i
		}
		if m.events[i] >= 0 {
			return i, off
		}
	}
	return -1, off
}

func (m *melody) uniquePitches() int {
	seen := make(map[int]bool)
	for _, e := range m.events {
		if e >= 0 {
			seen[e] = true
		}
	}
	return len(seen)
}

type melodyOptions struct {
	gapSteps         int
	minBars          int
	maxStepsTruncate int
	minUniquePitches int
	ignorePolyphony  bool
}

// melodyFrom builds the melody of one instrument that starts at or after
// searchStart. It reports ok=false when the melody could not be kept
// monophonic.
func melodyFrom(notes []quantizedNote, stepsPerBar, searchStart int, opts melodyOptions) (m *melody, ok bool) {
	m = &melody{stepsPerBar: stepsPerBar}

	var candidates []quantizedNote
	for _, n := range notes {
		if n.start >= searchStart {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return m, true
	}

	// highest pitch first among notes starting together
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].pitch > candidates[j].pitch
	})

	first := candidates[0].start
	start := first - (first-searchStart)%stepsPerBar

	for _, n := range candidates {
		if n.isDrum || n.velocity == 0 {
			continue
		}

		from, to := n.start-start, n.end-start
		if len(m.events) == 0 {
			m.addNote(n.pitch, from, to)
			continue
		}

		lastOn, lastOff := m.lastOnOff()
		onDistance := from - lastOn
		offDistance := from - lastOff

		if onDistance == 0 {
			if opts.ignorePolyphony {
				continue
			}
			return &melody{stepsPerBar: stepsPerBar}, false
		}

		if offDistance >= opts.gapSteps {
			break
		}

		m.addNote(n.pitch, from, to)
	}

	if len(m.events) == 0 {
		return m, true
	}

	m.startStep = start
	if m.events[len(m.events)-1] == melodyNoteOff {
		m.events = m.events[:len(m.events)-1]
	}

	length := len(m.events)
	if rem := length % stepsPerBar; rem != 0 {
		length += stepsPerBar - rem
	}
	m.setLength(length)

	return m, true
}

// extractMelodies walks every instrument of q and collects the monophonic
// melodies separated by gaps of silence.
func extractMelodies(q *quantizedSequence, opts melodyOptions) []*melody {
	byInstrument := make(map[int][]quantizedNote)
	var instruments []int
	for _, n := range q.notes {
		if _, ok := byInstrument[n.instrument]; !ok {
			instruments = append(instruments, n.instrument)
		}
		byInstrument[n.instrument] = append(byInstrument[n.instrument], n)
	}
	sort.Ints(instruments)

	var melodies []*melody
	for _, instrument := range instruments {
		searchStart := 0
		for {
			m, ok := melodyFrom(byInstrument[instrument], q.stepsPerBar, searchStart, opts)
			if !ok || len(m.events) == 0 {
				break
			}

			// next search starts on the bar boundary after this melody
			end := m.endStep()
			searchStart = end + mod(-end, q.stepsPerBar)

			if len(m.events) < m.stepsPerBar*opts.minBars {
				continue
			}

			if opts.maxStepsTruncate > 0 && len(m.events) > opts.maxStepsTruncate {
				m.setLength(opts.maxStepsTruncate - opts.maxStepsTruncate%m.stepsPerBar)
			}

			if m.uniquePitches() < opts.minUniquePitches {
				continue
			}

			melodies = append(melodies, m)
		}
	}

	return melodies
}

func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
