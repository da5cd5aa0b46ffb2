// Package walk enumerates input files under a root directory and maps each
// one to a path in a mirrored output tree.
package walk

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultExtension       = ".mid"
	DefaultOutputExtension = ".npy"
)

// Pair is an input file and the output file it maps to.
type Pair struct {
	Input  string
	Output string
}

// Options select which files are visited and how outputs are named.
type Options struct {
	// Extension is matched as a literal, case-sensitive suffix of the file name.
	Extension       string
	OutputExtension string
}

func (o Options) withDefaults() Options {
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if o.OutputExtension == "" {
		o.OutputExtension = DefaultOutputExtension
	}
	return o
}

// OutputPath mirrors input, a file under inputRoot, into outputRoot and
// replaces its extension with outputExt.
func OutputPath(inputRoot, outputRoot, input, outputExt string) (string, error) {
	rel, err := filepath.Rel(inputRoot, filepath.Dir(input))
	if err != nil {
		return "", errors.Wrapf(err, "relative path of %s", input)
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputRoot, rel, stem+outputExt), nil
}

// Walk visits every matching file under inputRoot in lexical order. The
// output directory of each pair exists by the time fn is called. A missing or
// unreadable input root, a failure creating an output directory and any error
// returned by fn stop the walk.
func Walk(inputRoot, outputRoot string, opts Options, fn func(Pair) error) error {
	log := walkLog.Named("Walk")
	opts = opts.withDefaults()

	inputAbs, err := filepath.Abs(inputRoot)
	if err != nil {
		return errors.Wrap(err, "input root")
	}
	outputAbs, err := filepath.Abs(outputRoot)
	if err != nil {
		return errors.Wrap(err, "output root")
	}

	info, err := os.Stat(inputAbs)
	if err != nil {
		return errors.Wrap(err, "input root")
	}
	if !info.IsDir() {
		return errors.Errorf("input root %s is not a directory", inputRoot)
	}

	return filepath.WalkDir(inputAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), opts.Extension) {
			return nil
		}

		out, err := OutputPath(inputAbs, outputAbs, path, opts.OutputExtension)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return errors.Wrap(err, "output directory")
		}

		log.Debug("pair", zap.String("input", path), zap.String("output", out))
		return fn(Pair{Input: path, Output: out})
	})
}
