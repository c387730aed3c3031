package sdr

import (
	"bufio"
	"os"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/dustin/go-humanize"
	pool "github.com/libp2p/go-buffer-pool"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

const sampleChunk = 1 << 20

// GenerateSampleFile writes size bytes of random field elements to path.
func GenerateSampleFile(size uint64, path string) (err error) {
	if size == 0 || size%NodeSize != 0 {
		return xerrors.Errorf("sample size %d is not a positive multiple of %d: %w", size, NodeSize, ErrInvalidArgument)
	}

	f, err := os.Create(path)
	if err != nil {
		return ioErr("generate sample", path, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	if err := fallocate.Fallocate(f, 0, int64(size)); err != nil {
		log.Debugw("preallocating sample failed", "path", path, "error", err)
	}

	buf := pool.Get(sampleChunk)
	defer pool.Put(buf)

	w := bufio.NewWriterSize(f, sampleChunk)
	for left := size; left > 0; {
		n := min(left, uint64(sampleChunk))
		chunk := buf[:n]
		if err := readRand(chunk); err != nil {
			return xerrors.Errorf("reading randomness: %w", err)
		}
		for off := NodeSize - 1; off < len(chunk); off += NodeSize {
			chunk[off] &= 0x3F
		}
		if _, err := w.Write(chunk); err != nil {
			return ioErr("generate sample", path, err)
		}
		left -= n
	}

	if err := multierr.Combine(w.Flush(), f.Sync(), f.Close()); err != nil {
		return ioErr("generate sample", path, err)
	}
	log.Infow("generated sample", "path", path, "size", humanize.IBytes(size))
	return nil
}
