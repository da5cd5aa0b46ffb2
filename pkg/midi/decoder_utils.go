package midi

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxVarLenBytes is the longest variable length quantity the format allows.
const maxVarLenBytes = 4

// add offset
func (d *Decoder) readByte() (byte, error) {
	var b byte
	err := binary.Read(d.r, binary.BigEndian, &b)
	if err != nil {
		return b, truncated(err)
	}
	d.offset += 1 // read byte
	return b, nil
}

func (d *Decoder) uint7() (uint8, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	return b & 0x7f, nil
}

// VarLen returns the variable length value at the exact parser location.
func (d *Decoder) varLen() (val uint32, err error) {
	buf := []byte{}
	var lastByte bool

	for !lastByte {
		if len(buf) == maxVarLenBytes {
			return 0, errors.Wrap(ErrUnexpectedData, "variable length quantity longer than 4 bytes")
		}
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		buf = append(buf, b)
		lastByte = b>>7 == 0x0
	}

	val, _ = decodeVarint(buf)
	return val, nil
}

// varLenTxt skips a length-prefixed payload.
func (d *Decoder) varLenTxt() error {
	l, err := d.varLen()
	if err != nil {
		return err
	}
	if err := d.checkTrackBounds(int64(l)); err != nil {
		return err
	}
	return d.skip(int64(l))
}

// varLenData reads a length-prefixed payload.
func (d *Decoder) varLenData() ([]byte, error) {
	l, err := d.varLen()
	if err != nil {
		return nil, err
	}
	if err := d.checkTrackBounds(int64(l)); err != nil {
		return nil, err
	}

	data := make([]byte, l)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, truncated(err)
	}
	d.offset += int64(l)
	return data, nil
}

func (d *Decoder) checkTrackBounds(n int64) error {
	if d.offset+n > d.trackEnd {
		return errors.Wrapf(ErrUnexpectedData, "payload of %d bytes overruns track chunk", n)
	}
	return nil
}

// IDnSize reads a chunk header: the 4 byte ID followed by the uint32 chunk size.
func (d *Decoder) IDnSize() ([4]byte, uint32, error) {
	var ID [4]byte
	if err := binary.Read(d.r, binary.BigEndian, &ID); err != nil {
		return ID, 0, truncated(err)
	}
	d.offset += 4 // [4]byte ID

	var size uint32
	if err := binary.Read(d.r, binary.BigEndian, &size); err != nil {
		return ID, 0, truncated(err)
	}
	d.offset += 4 // uint32 blockSize

	return ID, size, nil
}

// skip moves the reader n bytes forward. Seeking past the end is not an
// error for io.Seeker, so the next read reports the truncation.
func (d *Decoder) skip(n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := d.r.Seek(n, io.SeekCurrent); err != nil {
		return err
	}
	d.offset += n
	return nil
}

// truncated reports a clean EOF in the middle of the file as unexpected.
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
