package midi

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// defaultMicrosPerQuarter is 120 qpm, the tempo a file has until it sets one.
const defaultMicrosPerQuarter = 500000

// Note is a sounding note with its position in ticks and seconds.
type Note struct {
	Pitch      uint8
	Velocity   uint8
	StartTick  uint64
	EndTick    uint64
	StartTime  float64
	EndTime    float64
	Program    uint8
	Instrument int
	IsDrum     bool
}

// Document is the structured form of a MIDI file. It is never mutated once
// Parse returns it.
type Document struct {
	TicksPerQuarter uint16
	Tempos          []Tempo
	TimeSignatures  []TimeSignature
	Notes           []Note
	TotalTime       float64
}

// Seconds converts an absolute tick to seconds through the tempo map.
func (doc *Document) Seconds(tick uint64) float64 {
	i := sort.Search(len(doc.Tempos), func(i int) bool { return doc.Tempos[i].Tick > tick }) - 1
	if i < 0 {
		return 0
	}
	t := doc.Tempos[i]
	return t.Time + float64(tick-t.Tick)*secondsPerTick(t, doc.TicksPerQuarter)
}

// ConversionError reports MIDI content that could not be turned into a Document.
type ConversionError struct {
	Offset int64
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("midi conversion error at offset %d: %v", e.Offset, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Result is either a parsed Document or the reason parsing failed.
type Result struct {
	Document *Document
	Err      error
}

// Ok reports whether the file parsed.
func (r Result) Ok() bool {
	return r.Err == nil
}

// Parse decodes r into a Document. Malformed content is reported through
// Result.Err as a *ConversionError.
func Parse(r io.ReadSeeker) Result {
	decoder := NewDecoder(r)
	if err := decoder.Decode(); err != nil {
		return Result{Err: &ConversionError{Offset: decoder.offset, Err: err}}
	}
	return Result{Document: newDocument(decoder)}
}

// ReadFile parses the named file. The error is reserved for failures reading
// the file itself; malformed content is reported through the Result.
func ReadFile(name string) (Result, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return Result{}, errors.Wrapf(err, "read %s", name)
	}
	return Parse(bytes.NewReader(data)), nil
}

func secondsPerTick(t Tempo, ticksPerQuarter uint16) float64 {
	return float64(t.MicrosPerQuarter) / 1e6 / float64(ticksPerQuarter)
}

type instrumentKey struct {
	track   int
	channel uint8
	program uint8
}

// newDocument pairs note events per track and (channel, pitch). A note off
// closes every open note of its pitch except those started on the same tick.
// Notes still sounding when their track ends are dropped. Tempo and meter
// events only count on the first track.
func newDocument(d *Decoder) *Document {
	doc := &Document{TicksPerQuarter: d.TicksPerQuarterNote}
	doc.Tempos = tempoMap(firstTrackTempos(d.Tempos), d.TicksPerQuarterNote)

	for _, ts := range d.TimeSignatures {
		if ts.Track == 0 {
			doc.TimeSignatures = append(doc.TimeSignatures, ts)
		}
	}
	sort.SliceStable(doc.TimeSignatures, func(i, j int) bool {
		return doc.TimeSignatures[i].Tick < doc.TimeSignatures[j].Tick
	})
	for i := range doc.TimeSignatures {
		doc.TimeSignatures[i].Time = doc.Seconds(doc.TimeSignatures[i].Tick)
	}

	instruments := make(map[instrumentKey]int)
	instrument := func(k instrumentKey) int {
		if i, ok := instruments[k]; ok {
			return i
		}
		instruments[k] = len(instruments)
		return instruments[k]
	}

	for ti, track := range d.Tracks {
		var programs [16]uint8
		open := make(map[[2]uint8][]*Event)

		for _, e := range track.Events {
			k := [2]uint8{e.Channel, e.Note}
			switch {
			case e.MsgType == msgProgram:
				programs[e.Channel] = e.Program

			case e.MsgType == msgNoteOn && e.Velocity > 0:
				open[k] = append(open[k], e)

			case e.MsgType == msgNoteOff || e.MsgType == msgNoteOn:
				pending, ok := open[k]
				if !ok {
					continue
				}

				program := programs[e.Channel]
				var keep []*Event
				for _, on := range pending {
					if on.Tick == e.Tick {
						keep = append(keep, on)
						continue
					}
					doc.Notes = append(doc.Notes, Note{
						Pitch:      on.Note,
						Velocity:   on.Velocity,
						StartTick:  on.Tick,
						EndTick:    e.Tick,
						StartTime:  doc.Seconds(on.Tick),
						EndTime:    doc.Seconds(e.Tick),
						Program:    program,
						Instrument: instrument(instrumentKey{ti, e.Channel, program}),
						IsDrum:     isDrumChannel(e.Channel),
					})
				}

				// same tick pairs are dropped unless something else closed
				if len(keep) > 0 && len(keep) < len(pending) {
					open[k] = keep
				} else {
					delete(open, k)
				}
			}
		}
	}

	sort.SliceStable(doc.Notes, func(i, j int) bool {
		a, b := doc.Notes[i], doc.Notes[j]
		if a.StartTick != b.StartTick {
			return a.StartTick < b.StartTick
		}
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		return a.Pitch < b.Pitch
	})

	for _, n := range doc.Notes {
		if n.EndTime > doc.TotalTime {
			doc.TotalTime = n.EndTime
		}
	}

	return doc
}

func firstTrackTempos(events []Tempo) []Tempo {
	var out []Tempo
	for _, t := range events {
		if t.Track == 0 {
			out = append(out, t)
		}
	}
	return out
}

// tempoMap orders tempo events, keeps the last of several at one tick, drops
// changes to the tempo already in effect, starts the map at tick 0 and stamps
// each entry with its time in seconds.
func tempoMap(events []Tempo, ticksPerQuarter uint16) []Tempo {
	sorted := make([]Tempo, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	tempos := []Tempo{{Tick: 0, MicrosPerQuarter: defaultMicrosPerQuarter}}
	for _, t := range sorted {
		last := &tempos[len(tempos)-1]
		if t.Tick == last.Tick {
			last.MicrosPerQuarter = t.MicrosPerQuarter
			continue
		}
		if t.MicrosPerQuarter == last.MicrosPerQuarter {
			continue
		}
		t.Time = last.Time + float64(t.Tick-last.Tick)*secondsPerTick(*last, ticksPerQuarter)
		tempos = append(tempos, t)
	}

	return tempos
}
