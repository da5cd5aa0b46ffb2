package convert

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Garik-/midivae/pkg/midi"
)

// At 120 qpm and 480 ticks per quarter a sixteenth note step lasts 120 ticks.
const (
	ticksPerStep   = 120
	secondsPerStep = 0.125
)

func stepNote(pitch, start, end int) midi.Note {
	return midi.Note{
		Pitch:     uint8(pitch),
		Velocity:  100,
		StartTick: uint64(start * ticksPerStep),
		EndTick:   uint64(end * ticksPerStep),
		StartTime: float64(start) * secondsPerStep,
		EndTime:   float64(end) * secondsPerStep,
	}
}

func newDoc(notes ...midi.Note) *midi.Document {
	doc := &midi.Document{
		TicksPerQuarter: 480,
		Tempos:          []midi.Tempo{{MicrosPerQuarter: 500000}},
		Notes:           notes,
	}
	for _, n := range notes {
		if n.EndTime > doc.TotalTime {
			doc.TotalTime = n.EndTime
		}
	}
	return doc
}

// barMelody places one four step note at the start of each bar.
func barMelody(pitches ...int) []midi.Note {
	var notes []midi.Note
	for bar, p := range pitches {
		notes = append(notes, stepNote(p, bar*16, bar*16+4))
	}
	return notes
}

func TestQuantize(t *testing.T) {
	doc := newDoc(
		midi.Note{Pitch: 60, StartTime: 0.0624, EndTime: 0.0626},
		midi.Note{Pitch: 62, StartTime: 0.25, EndTime: 0.25},
	)

	q, err := quantize(doc, 4)
	require.NoError(t, err)

	assert.Equal(t, 16, q.stepsPerBar)
	require.Len(t, q.notes, 2)
	assert.Equal(t, 0, q.notes[0].start)
	assert.Equal(t, 1, q.notes[0].end)
	assert.Equal(t, 2, q.notes[1].start)
	assert.Equal(t, 3, q.notes[1].end)
}

func TestQuantize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  *midi.Document
		err  error
	}{
		{
			name: "tempo change",
			doc: &midi.Document{Tempos: []midi.Tempo{
				{MicrosPerQuarter: 500000},
				{Tick: 960, Time: 1, MicrosPerQuarter: 400000},
			}},
			err: errMultipleTempos,
		},
		{
			name: "time signature change",
			doc: &midi.Document{TimeSignatures: []midi.TimeSignature{
				{Numerator: 4, Denominator: 4},
				{Tick: 1920, Numerator: 3, Denominator: 4},
			}},
			err: errMultipleTimeSignatures,
		},
		{
			name: "late time signature",
			doc: &midi.Document{TimeSignatures: []midi.TimeSignature{
				{Tick: 1920, Numerator: 3, Denominator: 4},
			}},
			err: errMultipleTimeSignatures,
		},
		{
			name: "fractional bar",
			doc: &midi.Document{TimeSignatures: []midi.TimeSignature{
				{Numerator: 7, Denominator: 32},
			}},
			err: errNonIntegerStepsPerBar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quantize(tt.doc, 4)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestQuantize_RepeatedTempo(t *testing.T) {
	doc := newDoc(stepNote(60, 0, 4))
	doc.Tempos = append(doc.Tempos, midi.Tempo{Tick: 960, Time: 1, MicrosPerQuarter: 500000})

	_, err := quantize(doc, 4)
	assert.NoError(t, err)
}

func TestMelodyFrom(t *testing.T) {
	opts := melodyOptions{gapSteps: 16, minBars: 1, minUniquePitches: 1, ignorePolyphony: true}

	q, err := quantize(newDoc(
		stepNote(60, 2, 4),
		stepNote(64, 2, 6),
		stepNote(67, 6, 7),
	), 4)
	require.NoError(t, err)

	m, ok := melodyFrom(q.notes, 16, 0, opts)
	require.True(t, ok)

	want := make([]int, 16)
	for i := range want {
		want[i] = melodyNoEvent
	}
	want[2] = 64
	want[6] = 67

	assert.Equal(t, want, m.events)
	assert.Equal(t, 0, m.startStep)
}

func TestMelodyFrom_Polyphony(t *testing.T) {
	q, err := quantize(newDoc(stepNote(60, 0, 4), stepNote(64, 0, 4)), 4)
	require.NoError(t, err)

	_, ok := melodyFrom(q.notes, 16, 0, melodyOptions{gapSteps: 16})
	assert.False(t, ok)
}

func TestExtractMelodies_SplitsOnGap(t *testing.T) {
	q, err := quantize(newDoc(
		stepNote(60, 0, 4),
		stepNote(62, 16, 20),
		stepNote(64, 64, 68),
		stepNote(65, 80, 84),
	), 4)
	require.NoError(t, err)

	melodies := extractMelodies(q, melodyOptions{gapSteps: 16, minBars: 1, minUniquePitches: 1, ignorePolyphony: true})
	require.Len(t, melodies, 2)

	assert.Equal(t, 0, melodies[0].startStep)
	assert.Len(t, melodies[0].events, 32)
	assert.Equal(t, 64, melodies[1].startStep)
	assert.Len(t, melodies[1].events, 32)
}

func TestExtractMelodies_Truncates(t *testing.T) {
	q, err := quantize(newDoc(barMelody(60, 61, 62, 63, 64)...), 4)
	require.NoError(t, err)

	melodies := extractMelodies(q, melodyOptions{gapSteps: 16, minBars: 1, maxStepsTruncate: 40, minUniquePitches: 1, ignorePolyphony: true})
	require.Len(t, melodies, 1)
	assert.Len(t, melodies[0].events, 32)
}

func TestMelodyConverter_ToTensors(t *testing.T) {
	c := NewMelodyConverter(DefaultMelodyConfig())
	assert.Equal(t, 90, c.InputDepth())
	assert.Equal(t, 32, c.MaxSeqLen())
	assert.Equal(t, 0, c.ControlDepth())

	batch := c.ToTensors(newDoc(barMelody(60, 61, 62, 63)...))
	require.Equal(t, 3, batch.Len())
	require.Len(t, batch.Lengths, 3)
	require.Len(t, batch.Controls, 3)

	for i, input := range batch.Inputs {
		r, cols := input.Dims()
		assert.Equal(t, 32, r)
		assert.Equal(t, 90, cols)
		assert.Equal(t, 32, batch.Lengths[i])
		assert.Nil(t, batch.Controls[i])

		for row := 0; row < r; row++ {
			var sum float64
			for col := 0; col < cols; col++ {
				sum += input.At(row, col)
			}
			assert.Equal(t, 1.0, sum, "row %d is not one-hot", row)
		}
	}

	// windows are ordered, so the first one starts with pitch 60
	first := batch.Inputs[0]
	assert.Equal(t, 1.0, first.At(0, 60-PianoMinPitch+2))
	assert.Equal(t, 1.0, first.At(1, 0))
	assert.Equal(t, 1.0, first.At(4, 1))
	assert.Equal(t, 1.0, first.At(16, 61-PianoMinPitch+2))
	assert.Equal(t, 1.0, batch.Inputs[2].At(0, 62-PianoMinPitch+2))
}

func TestMelodyConverter_Deduplicates(t *testing.T) {
	c := NewMelodyConverter(DefaultMelodyConfig())

	// the last bar loses its trailing note off, so only it differs
	batch := c.ToTensors(newDoc(barMelody(60, 60, 60, 60, 60)...))
	assert.Equal(t, 2, batch.Len())
}

func TestMelodyConverter_Deterministic(t *testing.T) {
	c := NewMelodyConverter(DefaultMelodyConfig())
	doc := newDoc(append(barMelody(70, 65, 72, 60), barMelody(50, 52, 54)...)...)

	a := c.ToTensors(doc)
	b := c.ToTensors(doc)
	require.Equal(t, a.Len(), b.Len())
	for i := range a.Inputs {
		assert.Equal(t, a.Inputs[i].RawMatrix().Data, b.Inputs[i].RawMatrix().Data)
	}
}

func TestMelodyConverter_Empty(t *testing.T) {
	c := NewMelodyConverter(DefaultMelodyConfig())

	drums := barMelody(36, 38, 36, 38)
	for i := range drums {
		drums[i].IsDrum = true
	}

	strings := barMelody(60, 61, 62, 63)
	for i := range strings {
		strings[i].Program = 48
	}

	waltz := newDoc(barMelody(60, 61, 62, 63)...)
	waltz.TimeSignatures = []midi.TimeSignature{{Numerator: 3, Denominator: 4}}

	tests := []struct {
		name string
		doc  *midi.Document
	}{
		{"silent", newDoc()},
		{"drums", newDoc(drums...)},
		{"invalid program", newDoc(strings...)},
		{"shorter than a slice", newDoc(stepNote(60, 0, 4))},
		{"out of range", newDoc(barMelody(10, 11, 12, 13)...)},
		{"three four", waltz},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, c.ToTensors(tt.doc).Empty())
		})
	}
}

func TestMelodyConverter_FromMIDI(t *testing.T) {
	var track smf.Track
	track.Add(0, smf.MetaTempo(120))
	track.Add(0, smf.MetaMeter(4, 4))
	track.Add(0, gomidi.ProgramChange(0, 0))
	for bar, pitch := range []uint8{60, 64, 67, 72} {
		delta := uint32(0)
		if bar > 0 {
			delta = 12 * ticksPerStep
		}
		track.Add(delta, gomidi.NoteOn(0, pitch, 100))
		track.Add(4*ticksPerStep, gomidi.NoteOff(0, pitch))
	}
	track.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	require.NoError(t, s.Add(track))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	result := midi.Parse(bytes.NewReader(buf.Bytes()))
	require.True(t, result.Ok(), "%v", result.Err)

	batch := NewMelodyConverter(DefaultMelodyConfig()).ToTensors(result.Document)
	assert.Equal(t, 3, batch.Len())
}
