// Package vae loads pretrained MusicVAE-style encoders and maps note
// sequence tensors to latent vectors.
package vae

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/Garik-/midivae/pkg/convert"
)

// DefaultBatchSize is how many segments go to the encoder in one call.
const DefaultBatchSize = 512

// ErrUnknownConfig reports a configuration name missing from Configs.
var ErrUnknownConfig = errors.New("unknown model config")

// Config pairs a data converter configuration with the shape of the model
// trained on it.
type Config struct {
	Name      string
	ZSize     int
	BatchSize int
	Melody    convert.MelodyConfig
}

// Converter returns the converter the model was trained with.
func (c Config) Converter() *convert.MelodyConverter {
	return convert.NewMelodyConverter(c.Melody)
}

// FeatureSize is the length of the flattened (steps × (input + control))
// vector the encoder consumes.
func (c Config) FeatureSize() int {
	conv := c.Converter()
	return conv.MaxSeqLen() * (conv.InputDepth() + conv.ControlDepth())
}

// Configs holds the known model configurations by name.
var Configs = map[string]Config{
	"cat-mel_2bar_small": {
		Name:      "cat-mel_2bar_small",
		ZSize:     256,
		BatchSize: DefaultBatchSize,
		Melody:    convert.DefaultMelodyConfig(),
	},
	"cat-mel_2bar_big": {
		Name:      "cat-mel_2bar_big",
		ZSize:     512,
		BatchSize: DefaultBatchSize,
		Melody:    convert.DefaultMelodyConfig(),
	},
}

// LookupConfig returns the configuration registered under name.
func LookupConfig(name string) (Config, error) {
	cfg, ok := Configs[name]
	if !ok {
		return Config{}, errors.Wrapf(ErrUnknownConfig, "%q (known: %v)", name, ConfigNames())
	}
	return cfg, nil
}

// ConfigNames lists the registered configuration names in order.
func ConfigNames() []string {
	names := make([]string, 0, len(Configs))
	for name := range Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
