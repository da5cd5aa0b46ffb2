package midi

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type timeFormat int

const (
	MetricalTF timeFormat = iota + 1
	TimeCodeTF
)

const (
	msgNoteOff       = 0x8
	msgNoteOn        = 0x9
	msgPolyPressure  = 0xA
	msgControlChange = 0xB
	msgProgram       = 0xC
	msgChanPressure  = 0xD
	msgPitchBend     = 0xE

	metaTempo         = 0x51
	metaTimeSignature = 0x58
	metaEndOfTrack    = 0x2F

	drumChannel = 9
)

var (
	headerChunkID = [4]byte{0x4D, 0x54, 0x68, 0x64}
	trackChunkID  = [4]byte{0x4D, 0x54, 0x72, 0x6B}

	// ErrFmtNotSupported is a generic error reporting an unknown format.
	ErrFmtNotSupported = errors.New("format not supported")
	// ErrUnexpectedData is a generic error reporting that the parser encountered unexpected data.
	ErrUnexpectedData = errors.New("unexpected data content")
)

// Event is a channel voice message at an absolute tick.
type Event struct {
	TimeDelta uint32
	Tick      uint64
	MsgType   uint8
	Channel   uint8
	Note      uint8
	Velocity  uint8
	Program   uint8
}

type Track struct {
	Events  []*Event
	EndTick uint64
}

// Tempo is a set tempo meta event. Time is filled in once the tempo map is known.
type Tempo struct {
	Track            int
	Tick             uint64
	Time             float64
	MicrosPerQuarter uint32
}

// QPM returns the tempo in quarter notes per minute.
func (t Tempo) QPM() float64 {
	return 60e6 / float64(t.MicrosPerQuarter)
}

// TimeSignature is a time signature meta event.
type TimeSignature struct {
	Track       int
	Tick        uint64
	Time        float64
	Numerator   uint8
	Denominator uint8
}

// Decoder reads a Standard MIDI File chunk by chunk.
type Decoder struct {
	r             io.ReadSeeker
	currentTrack  *Track
	offset        int64
	trackEnd      int64
	tick          uint64
	runningStatus byte

	Format              uint16
	NumTracks           uint16
	TicksPerQuarterNote uint16
	TimeFormat          timeFormat
	Tracks              []*Track
	Tempos              []Tempo
	TimeSignatures      []TimeSignature
}

func NewDecoder(r io.ReadSeeker) *Decoder {
	return &Decoder{r: r, offset: 0}
}

// Decode parses the header chunk and every track chunk it announces.
// Chunks with unknown IDs are skipped.
func (d *Decoder) Decode() error {
	if _, err := d.r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	d.offset = 0

	id, size, err := d.IDnSize()
	if err != nil {
		return err
	}

	if id != headerChunkID {
		return errors.Wrapf(ErrFmtNotSupported, "header chunk ID %v", id)
	}

	if size < 6 {
		return errors.Wrapf(ErrFmtNotSupported, "expected header size to be 6, was %d", size)
	}

	var header struct {
		Format    uint16
		NumTracks uint16
		Division  uint16
	}
	if err := binary.Read(d.r, binary.BigEndian, &header); err != nil {
		return truncated(err)
	}
	d.offset += 6
	if err := d.skip(int64(size) - 6); err != nil {
		return err
	}

	if header.Format > 2 {
		return errors.Wrapf(ErrFmtNotSupported, "SMF format %d", header.Format)
	}
	d.Format = header.Format
	d.NumTracks = header.NumTracks

	if (header.Division & 0x8000) == 0 {
		d.TicksPerQuarterNote = header.Division & 0x7FFF
		d.TimeFormat = MetricalTF
	} else {
		d.TimeFormat = TimeCodeTF
		return errors.Wrap(ErrFmtNotSupported, "SMPTE time division")
	}

	if d.TicksPerQuarterNote == 0 {
		return errors.Wrap(ErrUnexpectedData, "zero ticks per quarter note")
	}

	for len(d.Tracks) < int(d.NumTracks) {
		id, size, err := d.IDnSize()
		if err != nil {
			return err
		}

		if id != trackChunkID {
			if err := d.skip(int64(size)); err != nil {
				return err
			}
			continue
		}

		if err := d.parseTrack(size); err != nil {
			return err
		}
	}

	_, err = d.r.Seek(0, io.SeekStart)
	return err
}

func (d *Decoder) parseTrack(size uint32) error {
	d.currentTrack = new(Track)
	d.Tracks = append(d.Tracks, d.currentTrack)
	d.trackEnd = d.offset + int64(size)
	d.tick = 0
	d.runningStatus = 0

	for d.offset < d.trackEnd {
		done, err := d.parseEvent()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	d.currentTrack.EndTick = d.tick

	if d.offset > d.trackEnd {
		return errors.Wrapf(ErrUnexpectedData, "event overruns track chunk by %d bytes", d.offset-d.trackEnd)
	}

	if d.offset < d.trackEnd {
		d.offset = d.trackEnd
		if _, err := d.r.Seek(d.offset, io.SeekStart); err != nil {
			return err
		}
	}

	return nil
}

// parseEvent reads one track event and reports whether it was the end of track.
func (d *Decoder) parseEvent() (bool, error) {
	timeDelta, err := d.varLen()
	if err != nil {
		return false, err
	}
	d.tick += uint64(timeDelta)

	// status byte give us the msg type and channel.
	statusByte, err := d.readByte()
	if err != nil {
		return false, err
	}

	if statusByte&0x80 == 0 {
		if d.runningStatus == 0 {
			return false, errors.Wrapf(ErrUnexpectedData, "data byte %#x without running status", statusByte)
		}

		d.offset -= 1
		if _, err := d.r.Seek(-1, io.SeekCurrent); err != nil {
			return false, err
		}
		statusByte = d.runningStatus
	}

	switch {
	case statusByte == 0xFF:
		d.runningStatus = 0
		return d.parseMetaMsg()

	case statusByte == 0xF0 || statusByte == 0xF7:
		d.runningStatus = 0
		return false, d.varLenTxt()

	case statusByte > 0xF0:
		return false, errors.Wrapf(ErrUnexpectedData, "status byte %#x in track chunk", statusByte)
	}

	d.runningStatus = statusByte

	e := &Event{TimeDelta: timeDelta, Tick: d.tick}
	e.MsgType = (statusByte & 0xF0) >> 4
	e.Channel = statusByte & 0x0F

	// Extract values based on message type
	switch e.MsgType {

	case msgChanPressure:
		return false, d.skip(1)

	case msgPolyPressure, msgControlChange, msgPitchBend:
		return false, d.skip(2)

	case msgProgram:
		if e.Program, err = d.uint7(); err != nil {
			return false, err
		}

	case msgNoteOff, msgNoteOn:
		if e.Note, err = d.uint7(); err != nil {
			return false, err
		}
		if e.Velocity, err = d.uint7(); err != nil {
			return false, err
		}
	}

	d.currentTrack.Events = append(d.currentTrack.Events, e)
	return false, nil
}

func (d *Decoder) parseMetaMsg() (bool, error) {
	metaType, err := d.readByte()
	if err != nil {
		return false, err
	}

	data, err := d.varLenData()
	if err != nil {
		return false, err
	}

	switch metaType {
	case metaEndOfTrack:
		return true, nil

	case metaTempo:
		if len(data) != 3 {
			return false, errors.Wrapf(ErrUnexpectedData, "tempo meta event of %d bytes", len(data))
		}
		us := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		if us == 0 {
			return false, errors.Wrap(ErrUnexpectedData, "zero tempo")
		}
		d.Tempos = append(d.Tempos, Tempo{Track: len(d.Tracks) - 1, Tick: d.tick, MicrosPerQuarter: us})

	case metaTimeSignature:
		if len(data) < 2 || data[1] > 7 {
			return false, errors.Wrapf(ErrUnexpectedData, "bad time signature %v", data)
		}
		d.TimeSignatures = append(d.TimeSignatures, TimeSignature{
			Track:       len(d.Tracks) - 1,
			Tick:        d.tick,
			Numerator:   data[0],
			Denominator: 1 << data[1],
		})
	}

	return false, nil
}
