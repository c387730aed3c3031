package testutils

import (
	"crypto/rand"
	"io"
	"os"

	"golang.org/x/xerrors"
)

const nodeSize = 32

// RandomNodes returns n random 32-byte nodes, each a valid field element.
func RandomNodes(n int) ([]byte, error) {
	buf := make([]byte, n*nodeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	for off := nodeSize - 1; off < len(buf); off += nodeSize {
		buf[off] &= 0x3F
	}
	return buf, nil
}

// CreateRandomNodeFile writes a temporary data file of the given node count in dir.
func CreateRandomNodeFile(dir string, nodes int) (string, error) {
	data, err := RandomNodes(nodes)
	if err != nil {
		return "", err
	}

	file, err := os.CreateTemp(dir, "sourcefile-*.dat")
	if err != nil {
		return "", err
	}
	defer file.Close() // nolint:errcheck

	n, err := file.Write(data)
	if err != nil {
		return "", err
	}
	if n != len(data) {
		return "", xerrors.Errorf("incorrect file size: written %d != expected %d", n, len(data))
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return file.Name(), nil
}
