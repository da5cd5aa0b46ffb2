package convert

import (
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Garik-/midivae/pkg/midi"
)

// Piano range, the default melody pitch range.
const (
	PianoMinPitch = 21
	PianoMaxPitch = 108

	numSpecialEvents = 2
)

// MelodyConfig selects how melodies are extracted and sliced.
type MelodyConfig struct {
	StepsPerQuarter int
	SliceBars       int
	MaxBars         int
	GapBars         int
	MinPitch        int
	MaxPitch        int
	// ValidPrograms lists the General MIDI programs melodies may come from.
	// Nil allows every program.
	ValidPrograms []uint8
	SkipPolyphony bool
}

// MelodyPrograms are the piano, chromatic percussion, organ and guitar programs.
func MelodyPrograms() []uint8 {
	programs := make([]uint8, 32)
	for i := range programs {
		programs[i] = uint8(i)
	}
	return programs
}

// DefaultMelodyConfig is the two bar melody configuration.
func DefaultMelodyConfig() MelodyConfig {
	return MelodyConfig{
		StepsPerQuarter: 4,
		SliceBars:       2,
		MaxBars:         100,
		GapBars:         1,
		MinPitch:        PianoMinPitch,
		MaxPitch:        PianoMaxPitch,
		ValidPrograms:   MelodyPrograms(),
	}
}

// MelodyConverter encodes monophonic melodies as one-hot sequences: index 0
// is "no event", 1 is "note off" and the rest are pitches from MinPitch to
// MaxPitch.
type MelodyConverter struct {
	cfg         MelodyConfig
	stepsPerBar int
	programs    map[uint8]bool
	log         *zap.Logger
}

// NewMelodyConverter builds a converter for cfg. Steps per bar assume 4/4.
func NewMelodyConverter(cfg MelodyConfig) *MelodyConverter {
	c := &MelodyConverter{
		cfg:         cfg,
		stepsPerBar: cfg.StepsPerQuarter * 4,
		log:         converterLog.Named("melody"),
	}
	if cfg.ValidPrograms != nil {
		c.programs = make(map[uint8]bool, len(cfg.ValidPrograms))
		for _, p := range cfg.ValidPrograms {
			c.programs[p] = true
		}
	}
	return c
}

func (c *MelodyConverter) InputDepth() int {
	return c.cfg.MaxPitch - c.cfg.MinPitch + 1 + numSpecialEvents
}

func (c *MelodyConverter) ControlDepth() int {
	return 0
}

func (c *MelodyConverter) MaxSeqLen() int {
	return c.stepsPerBar * c.cfg.SliceBars
}

// ToTensors extracts melodies from doc, slices them into windows of
// SliceBars bars with a one bar hop and one-hot encodes each distinct window.
// Documents that cannot be quantized on the converter's grid give an empty
// batch.
func (c *MelodyConverter) ToTensors(doc *midi.Document) *Batch {
	batch := &Batch{}

	q, err := quantize(doc, c.cfg.StepsPerQuarter)
	if err != nil {
		c.log.Debug("quantize", zap.Error(err))
		return batch
	}
	if q.stepsPerBar != c.stepsPerBar {
		c.log.Debug("steps per bar", zap.Int("got", q.stepsPerBar), zap.Int("want", c.stepsPerBar))
		return batch
	}

	q.notes = c.filterNotes(q.notes)

	gapBars := c.cfg.GapBars
	gapSteps := gapBars * c.stepsPerBar
	if gapBars <= 0 {
		gapSteps = int(^uint(0) >> 1)
	}

	melodies := extractMelodies(q, melodyOptions{
		gapSteps:         gapSteps,
		minBars:          1,
		maxStepsTruncate: c.cfg.MaxBars * c.stepsPerBar,
		minUniquePitches: 1,
		ignorePolyphony:  !c.cfg.SkipPolyphony,
	})

	for _, window := range c.windows(melodies) {
		batch.Inputs = append(batch.Inputs, c.oneHot(window))
		batch.Lengths = append(batch.Lengths, len(window))
		batch.Controls = append(batch.Controls, nil)
	}

	c.log.Debug("to tensors",
		zap.Int("notes", len(q.notes)),
		zap.Int("melodies", len(melodies)),
		zap.Int("segments", batch.Len()))

	return batch
}

func (c *MelodyConverter) filterNotes(notes []quantizedNote) []quantizedNote {
	kept := notes[:0:0]
	for _, n := range notes {
		if n.isDrum {
			continue
		}
		if c.programs != nil && !c.programs[n.program] {
			continue
		}
		if n.pitch < c.cfg.MinPitch || n.pitch > c.cfg.MaxPitch {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

// windows slices every melody and returns the distinct windows in a stable
// order.
func (c *MelodyConverter) windows(melodies []*melody) [][]int {
	sliceSteps := c.MaxSeqLen()

	seen := make(map[string]bool)
	var windows [][]int
	for _, m := range melodies {
		for end := sliceSteps; end <= len(m.events); end += c.stepsPerBar {
			window := m.events[end-sliceSteps : end]
			key := windowKey(window)
			if seen[key] {
				continue
			}
			seen[key] = true
			windows = append(windows, append([]int(nil), window...))
		}
	}

	sort.Slice(windows, func(i, j int) bool {
		a, b := windows[i], windows[j]
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	return windows
}

func windowKey(events []int) string {
	key := make([]byte, len(events))
	for i, e := range events {
		key[i] = byte(e + numSpecialEvents)
	}
	return string(key)
}

func (c *MelodyConverter) encodeEvent(e int) int {
	if e < 0 {
		return e + numSpecialEvents
	}
	return e - c.cfg.MinPitch + numSpecialEvents
}

func (c *MelodyConverter) oneHot(events []int) *mat.Dense {
	m := mat.NewDense(len(events), c.InputDepth(), nil)
	for i, e := range events {
		m.Set(i, c.encodeEvent(e), 1)
	}
	return m
}

var _ Converter = (*MelodyConverter)(nil)
