// Package encoder turns MIDI files into latent matrices on disk using a
// trained model.
package encoder

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Garik-/midivae/pkg/convert"
	"github.com/Garik-/midivae/pkg/midi"
	"github.com/Garik-/midivae/pkg/vae"
)

// Outcome is what happened to a single input file.
type Outcome int

const (
	Encoded Outcome = iota
	SkippedParse
	SkippedEmpty
)

func (o Outcome) String() string {
	switch o {
	case Encoded:
		return "encoded"
	case SkippedParse:
		return "skipped_parse"
	case SkippedEmpty:
		return "skipped_empty"
	}
	return "unknown"
}

// Adapter runs one file through parse, convert, encode and save. It holds
// no per-file state and may be shared.
type Adapter struct {
	model     *vae.TrainedModel
	converter convert.Converter
	log       *zap.Logger
	progress  bool
}

// NewAdapter builds an adapter around model. A nil converter selects the
// one described by the model configuration, a nil logger discards output.
func NewAdapter(model *vae.TrainedModel, converter convert.Converter, log *zap.Logger, progress bool) *Adapter {
	if converter == nil {
		converter = model.Config().Converter()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		model:     model,
		converter: converter,
		log:       log,
		progress:  progress,
	}
}

// EncodeFile encodes the MIDI file in and writes the mean latent vector of
// every segment to out as a (segments, z) .npy matrix. Files that cannot be
// parsed or yield no segments are skipped without error. Read, model and
// write failures are returned.
func (a *Adapter) EncodeFile(ctx context.Context, in, out string) (Outcome, error) {
	outcome, _, err := a.encodeFile(ctx, in, out)
	return outcome, err
}

// encodeFile is EncodeFile that also reports the number of segments written.
func (a *Adapter) encodeFile(ctx context.Context, in, out string) (Outcome, int, error) {
	batch, outcome, err := a.prepare(in)
	if err != nil || outcome != Encoded {
		return outcome, 0, err
	}
	if err := a.encode(ctx, in, out, batch); err != nil {
		return outcome, 0, err
	}
	return Encoded, batch.Len(), nil
}

// prepare parses and converts in without touching the model or the output
// tree.
func (a *Adapter) prepare(in string) (*convert.Batch, Outcome, error) {
	log := a.log.Named("prepare")

	result, err := midi.ReadFile(in)
	if err != nil {
		return nil, SkippedParse, errors.Wrapf(err, "read %s", in)
	}
	if !result.Ok() {
		log.Warn("could not parse MIDI file", zap.String("path", in), zap.Error(result.Err))
		return nil, SkippedParse, nil
	}

	batch := a.converter.ToTensors(result.Document)
	if batch.Empty() {
		if a.progress {
			log.Info("no segments found", zap.String("path", in))
		}
		return nil, SkippedEmpty, nil
	}

	return batch, Encoded, nil
}

func (a *Adapter) encode(ctx context.Context, in, out string, batch *convert.Batch) error {
	enc, err := a.model.EncodeTensors(ctx, batch.Inputs, batch.Lengths, batch.Controls)
	if err != nil {
		return errors.Wrapf(err, "encode %s", in)
	}
	if err := SaveMatrix(out, enc.Mu); err != nil {
		return err
	}

	if a.progress {
		a.log.Named("encode").Info("encoded",
			zap.String("path", in),
			zap.Int("segments", batch.Len()),
			zap.String("output", out))
	}
	return nil
}
