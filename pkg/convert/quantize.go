package convert

import (
	"math"

	"github.com/pkg/errors"

	"github.com/Garik-/midivae/pkg/midi"
)

const (
	defaultQPM = 120.0

	// quantizeCutoff rounds a time to the following step once it is at least
	// this far past the previous one.
	quantizeCutoff = 0.5
)

var (
	errMultipleTempos         = errors.New("multiple tempo changes")
	errMultipleTimeSignatures = errors.New("multiple time signatures")
	errNonIntegerStepsPerBar  = errors.New("non-integer steps per bar")
)

type quantizedNote struct {
	pitch      int
	velocity   int
	start      int
	end        int
	program    uint8
	instrument int
	isDrum     bool
}

type quantizedSequence struct {
	notes       []quantizedNote
	stepsPerBar int
}

// quantize places every note of doc on a grid of stepsPerQuarter steps per
// quarter note. Only documents with a single tempo and a single time
// signature can be quantized.
func quantize(doc *midi.Document, stepsPerQuarter int) (*quantizedSequence, error) {
	qpm := defaultQPM
	if len(doc.Tempos) > 0 {
		first := doc.Tempos[0]
		qpm = first.QPM()
		for _, t := range doc.Tempos[1:] {
			if !sameQPM(t.QPM(), qpm) {
				return nil, errors.Wrapf(errMultipleTempos, "%.2f qpm at tick %d", t.QPM(), t.Tick)
			}
		}
	}

	num, den := 4, 4
	if len(doc.TimeSignatures) > 0 {
		first := doc.TimeSignatures[0]
		if first.Tick != 0 && (first.Numerator != 4 || first.Denominator != 4) {
			return nil, errors.Wrap(errMultipleTimeSignatures, "implicit 4/4 before first time signature")
		}
		num, den = int(first.Numerator), int(first.Denominator)
		for _, ts := range doc.TimeSignatures[1:] {
			if int(ts.Numerator) != num || int(ts.Denominator) != den {
				return nil, errors.Wrapf(errMultipleTimeSignatures, "%d/%d at tick %d", ts.Numerator, ts.Denominator, ts.Tick)
			}
		}
	}

	if num == 0 {
		return nil, errors.Wrap(errNonIntegerStepsPerBar, "zero numerator")
	}
	stepsPerBar := float64(stepsPerQuarter) * 4 * float64(num) / float64(den)
	if stepsPerBar != math.Trunc(stepsPerBar) {
		return nil, errors.Wrapf(errNonIntegerStepsPerBar, "%d/%d", num, den)
	}

	stepsPerSecond := qpm / 60 * float64(stepsPerQuarter)
	q := &quantizedSequence{
		stepsPerBar: int(stepsPerBar),
		notes:       make([]quantizedNote, 0, len(doc.Notes)),
	}

	for _, n := range doc.Notes {
		start := quantizeToStep(n.StartTime, stepsPerSecond)
		end := quantizeToStep(n.EndTime, stepsPerSecond)
		if end == start {
			end++
		}
		q.notes = append(q.notes, quantizedNote{
			pitch:      int(n.Pitch),
			velocity:   int(n.Velocity),
			start:      start,
			end:        end,
			program:    n.Program,
			instrument: n.Instrument,
			isDrum:     n.IsDrum,
		})
	}

	return q, nil
}

func quantizeToStep(seconds, stepsPerSecond float64) int {
	return int(seconds*stepsPerSecond + (1 - quantizeCutoff))
}

func sameQPM(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
