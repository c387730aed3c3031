package paths

import (
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

var log = logging.Logger("paths")

// Expand resolves ~ and returns an absolute path.
func Expand(path string) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", xerrors.Errorf("expanding path %s: %w", path, err)
	}
	return filepath.Abs(p)
}

// PrepareDir creates dir if needed. With clean set, everything inside it is removed first.
// The directory itself is kept so existing handles and permissions survive.
func PrepareDir(dir string, clean bool) error {
	if clean {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			log.Infow("cleaned directory", "dir", dir, "removed", len(entries))
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	st, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return xerrors.Errorf("%s is not a directory", dir)
	}
	return nil
}

// CheckWritable checks that files can be created in dir.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
