package vae

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrMisalignedTensors reports inputs, lengths and controls that do not
// describe the same segments.
var ErrMisalignedTensors = errors.New("misaligned tensors")

// TrainedModel is a loaded model. It is built once and shared read-only by
// every encode call.
type TrainedModel struct {
	cfg     Config
	encoder Encoder
}

func NewTrainedModel(cfg Config, encoder Encoder) *TrainedModel {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &TrainedModel{cfg: cfg, encoder: encoder}
}

// Config returns the configuration the model was loaded with.
func (m *TrainedModel) Config() Config {
	return m.cfg
}

// EncodeTensors encodes aligned segment tensors in batches of at most
// BatchSize segments and returns one row per segment. controls may be nil
// for unconditioned models.
func (m *TrainedModel) EncodeTensors(ctx context.Context, inputs []*mat.Dense, lengths []int, controls []*mat.Dense) (Encoding, error) {
	log := modelLog.Named("EncodeTensors")

	n := len(inputs)
	if n == 0 {
		return Encoding{}, errors.Wrap(ErrMisalignedTensors, "no segments")
	}
	if len(lengths) != n {
		return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "%d inputs, %d lengths", n, len(lengths))
	}
	if controls != nil && len(controls) != n {
		return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "%d inputs, %d controls", n, len(controls))
	}

	out := Encoding{
		Z:     mat.NewDense(n, m.cfg.ZSize, nil),
		Mu:    mat.NewDense(n, m.cfg.ZSize, nil),
		Sigma: mat.NewDense(n, m.cfg.ZSize, nil),
	}

	for start := 0; start < n; start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > n {
			end = n
		}

		examples := make([]Example, 0, end-start)
		for i := start; i < end; i++ {
			ex := Example{Input: inputs[i], Length: lengths[i]}
			if controls != nil {
				ex.Control = controls[i]
			}
			examples = append(examples, ex)
		}

		log.Debug("batch", zap.Int("start", start), zap.Int("size", len(examples)))

		enc, err := m.encoder.Encode(ctx, examples)
		if err != nil {
			return Encoding{}, errors.Wrapf(err, "encode segments %d-%d", start, end-1)
		}

		if enc.Mu == nil {
			return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "encoder returned no mu for segments %d-%d", start, end-1)
		}

		for _, part := range []struct{ dst, src *mat.Dense }{
			{out.Z, enc.Z},
			{out.Mu, enc.Mu},
			{out.Sigma, enc.Sigma},
		} {
			// z and sigma are optional
			if part.src == nil {
				continue
			}
			r, c := part.src.Dims()
			if r != len(examples) || c != m.cfg.ZSize {
				return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "encoder returned %dx%d for %d segments of size %d", r, c, len(examples), m.cfg.ZSize)
			}
			part.dst.Slice(start, end, 0, c).(*mat.Dense).Copy(part.src)
		}
	}

	return out, nil
}
