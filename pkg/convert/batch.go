// Package convert turns parsed MIDI documents into model-ready tensors.
package convert

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Garik-/midivae/pkg/midi"
)

// Batch holds three aligned sequences, one entry per segment. Inputs are
// (steps × depth) matrices; a nil control means the segment is unconditioned.
type Batch struct {
	Inputs   []*mat.Dense
	Lengths  []int
	Controls []*mat.Dense
}

// Len returns the number of segments.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Inputs)
}

// Empty reports whether the batch has no segments.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Converter derives a Batch from a Document. Implementations are
// deterministic: the same document always yields the same batch.
type Converter interface {
	ToTensors(doc *midi.Document) *Batch
	InputDepth() int
	ControlDepth() int
	MaxSeqLen() int
}
