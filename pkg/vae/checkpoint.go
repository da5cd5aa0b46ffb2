package vae

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrCheckpoint reports a checkpoint that is missing weights or has weights
// of the wrong shape.
var ErrCheckpoint = errors.New("invalid checkpoint")

// Checkpoint tensor names, relative to the checkpoint root.
const (
	MuKernelName    = "encoder/mu/kernel.npy"
	MuBiasName      = "encoder/mu/bias.npy"
	SigmaKernelName = "encoder/sigma/kernel.npy"
	SigmaBiasName   = "encoder/sigma/bias.npy"
)

var checkpointTensors = []string{MuKernelName, MuBiasName, SigmaKernelName, SigmaBiasName}

// LoadCheckpoint reads encoder weights from a checkpoint directory or a
// .tar / .tar.gz archive of one. Archive members may sit under a top-level
// directory. Only the .npy layout named by the tensor constants is read; a
// TensorFlow checkpoint has to be exported to it first or served through a
// RemoteEncoder.
func LoadCheckpoint(checkpoint string, cfg Config) (*GaussianEncoder, error) {
	log := modelLog.Named("LoadCheckpoint")

	info, err := os.Stat(checkpoint)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}

	var tensors map[string][]byte
	if info.IsDir() {
		tensors, err = readCheckpointDir(checkpoint)
	} else {
		tensors, err = readCheckpointArchive(checkpoint)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("tensors", zap.String("checkpoint", checkpoint), zap.Int("count", len(tensors)))

	if len(tensors) == 0 {
		return nil, errors.Wrapf(ErrCheckpoint, "%s has no encoder/{mu,sigma}/{kernel,bias}.npy tensors; "+
			"export TensorFlow checkpoints to .npy or serve them with a model server", checkpoint)
	}

	muKernel, err := readMatrix(tensors, MuKernelName)
	if err != nil {
		return nil, err
	}
	sigmaKernel, err := readMatrix(tensors, SigmaKernelName)
	if err != nil {
		return nil, err
	}
	muBias, err := readVector(tensors, MuBiasName)
	if err != nil {
		return nil, err
	}
	sigmaBias, err := readVector(tensors, SigmaBiasName)
	if err != nil {
		return nil, err
	}

	return NewGaussianEncoder(cfg, muKernel, muBias, sigmaKernel, sigmaBias)
}

func readCheckpointDir(dir string) (map[string][]byte, error) {
	tensors := make(map[string][]byte, len(checkpointTensors))
	for _, name := range checkpointTensors {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "read %s", name)
		}
		tensors[name] = data
	}
	return tensors, nil
}

func readCheckpointArchive(archive string) (map[string][]byte, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(archive, ".gz") || strings.HasSuffix(archive, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", archive, err)
		}
		defer gz.Close()
		r = gz
	}

	tensors := make(map[string][]byte, len(checkpointTensors))
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", archive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := tensorName(hdr.Name)
		if name == "" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(ErrCheckpoint, "%s: %s: %v", archive, hdr.Name, err)
		}
		tensors[name] = data
	}

	return tensors, nil
}

// tensorName matches an archive member against the known tensor names.
func tensorName(member string) string {
	member = path.Clean(strings.TrimPrefix(member, "./"))
	for _, name := range checkpointTensors {
		if member == name || strings.HasSuffix(member, "/"+name) {
			return name
		}
	}
	return ""
}

func readMatrix(tensors map[string][]byte, name string) (*mat.Dense, error) {
	data, ok := tensors[name]
	if !ok {
		return nil, errors.Wrapf(ErrCheckpoint, "missing %s", name)
	}

	var m mat.Dense
	if err := npyio.Read(bytes.NewReader(data), &m); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", name, err)
	}
	return &m, nil
}

func readVector(tensors map[string][]byte, name string) ([]float64, error) {
	data, ok := tensors[name]
	if !ok {
		return nil, errors.Wrapf(ErrCheckpoint, "missing %s", name)
	}

	var v []float64
	if err := npyio.Read(bytes.NewReader(data), &v); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", name, err)
	}
	return v, nil
}
