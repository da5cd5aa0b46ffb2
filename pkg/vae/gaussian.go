package vae

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// GaussianEncoder maps a flattened segment to a diagonal Gaussian:
//
//	mu    = x·MuKernel + MuBias
//	sigma = softplus(x·SigmaKernel + SigmaBias)
//	z     = mu + sigma·eps, eps ~ N(0, 1)
//
// Steps past a segment's length are zero in x. Sampling is seeded per call,
// so Encode never mutates the encoder.
type GaussianEncoder struct {
	seqLen       int
	inputDepth   int
	controlDepth int

	muKernel    *mat.Dense
	muBias      []float64
	sigmaKernel *mat.Dense
	sigmaBias   []float64

	Seed int64
}

// NewGaussianEncoder validates the weight shapes against cfg.
func NewGaussianEncoder(cfg Config, muKernel *mat.Dense, muBias []float64, sigmaKernel *mat.Dense, sigmaBias []float64) (*GaussianEncoder, error) {
	conv := cfg.Converter()
	e := &GaussianEncoder{
		seqLen:       conv.MaxSeqLen(),
		inputDepth:   conv.InputDepth(),
		controlDepth: conv.ControlDepth(),
		muKernel:     muKernel,
		muBias:       muBias,
		sigmaKernel:  sigmaKernel,
		sigmaBias:    sigmaBias,
	}

	features := cfg.FeatureSize()
	for name, k := range map[string]*mat.Dense{"mu": muKernel, "sigma": sigmaKernel} {
		r, c := k.Dims()
		if r != features || c != cfg.ZSize {
			return nil, errors.Wrapf(ErrCheckpoint, "%s kernel is %dx%d, want %dx%d", name, r, c, features, cfg.ZSize)
		}
	}
	for name, b := range map[string][]float64{"mu": muBias, "sigma": sigmaBias} {
		if len(b) != cfg.ZSize {
			return nil, errors.Wrapf(ErrCheckpoint, "%s bias has %d entries, want %d", name, len(b), cfg.ZSize)
		}
	}

	return e, nil
}

func (e *GaussianEncoder) Encode(ctx context.Context, examples []Example) (Encoding, error) {
	if err := ctx.Err(); err != nil {
		return Encoding{}, err
	}
	if len(examples) == 0 {
		return Encoding{}, errors.Wrap(ErrMisalignedTensors, "no segments")
	}

	x, err := e.features(examples)
	if err != nil {
		return Encoding{}, err
	}

	_, zSize := e.muKernel.Dims()
	n := len(examples)

	mu := mat.NewDense(n, zSize, nil)
	mu.Mul(x, e.muKernel)
	addBias(mu, e.muBias)

	sigma := mat.NewDense(n, zSize, nil)
	sigma.Mul(x, e.sigmaKernel)
	addBias(sigma, e.sigmaBias)
	sigma.Apply(func(_, _ int, v float64) float64 { return softplus(v) }, sigma)

	rng := rand.New(rand.NewSource(e.Seed))
	z := mat.NewDense(n, zSize, nil)
	z.Apply(func(i, j int, _ float64) float64 {
		return mu.At(i, j) + sigma.At(i, j)*rng.NormFloat64()
	}, z)

	return Encoding{Z: z, Mu: mu, Sigma: sigma}, nil
}

func (e *GaussianEncoder) features(examples []Example) (*mat.Dense, error) {
	width := e.inputDepth + e.controlDepth
	x := mat.NewDense(len(examples), e.seqLen*width, nil)

	for i, ex := range examples {
		r, c := ex.Input.Dims()
		if c != e.inputDepth || r > e.seqLen {
			return nil, errors.Wrapf(ErrMisalignedTensors, "segment %d input is %dx%d, want at most %dx%d", i, r, c, e.seqLen, e.inputDepth)
		}
		if ex.Length < 0 || ex.Length > r {
			return nil, errors.Wrapf(ErrMisalignedTensors, "segment %d length %d exceeds %d steps", i, ex.Length, r)
		}
		if ex.Control != nil {
			cr, cc := ex.Control.Dims()
			if cc != e.controlDepth || cr < ex.Length {
				return nil, errors.Wrapf(ErrMisalignedTensors, "segment %d control is %dx%d", i, cr, cc)
			}
		}

		row := x.RawRowView(i)
		for step := 0; step < ex.Length; step++ {
			copy(row[step*width:], ex.Input.RawRowView(step))
			if ex.Control != nil {
				copy(row[step*width+e.inputDepth:], ex.Control.RawRowView(step))
			}
		}
	}

	return x, nil
}

func addBias(m *mat.Dense, bias []float64) {
	m.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, m)
}

func softplus(v float64) float64 {
	if v > 30 {
		return v
	}
	return math.Log1p(math.Exp(v))
}
