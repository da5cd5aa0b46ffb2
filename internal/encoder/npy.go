package encoder

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// SaveMatrix writes m to name in NumPy .npy format. The data goes to a
// temporary file next to name which then replaces it, so name either keeps
// its previous content or holds the complete matrix.
func SaveMatrix(name string, m *mat.Dense) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary output")
	}
	tmp := f.Name()

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = npyio.Write(f, m); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	if err = f.Chmod(0644); err != nil {
		return errors.Wrapf(err, "chmod %s", tmp)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err = os.Rename(tmp, name); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}
