package vae

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Example is one segment as the encoder sees it. Control may be nil.
type Example struct {
	Input   *mat.Dense
	Length  int
	Control *mat.Dense
}

// Encoding holds one row per encoded segment: the sampled latent Z and the
// parameters Mu and Sigma of the distribution it was drawn from.
type Encoding struct {
	Z     *mat.Dense
	Mu    *mat.Dense
	Sigma *mat.Dense
}

// Encoder runs the encoder half of a trained model.
type Encoder interface {
	Encode(ctx context.Context, examples []Example) (Encoding, error)
}
