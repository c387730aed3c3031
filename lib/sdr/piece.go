package sdr

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/dustin/go-humanize"
	"github.com/filecoin-project/go-padreader"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/lotus/storage/sealer/fr32"
	pool "github.com/libp2p/go-buffer-pool"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

// stageChunk is a whole number of 127-byte fr32 input groups.
const stageChunk = 127 * 8192

// PieceInfo records how a raw file was laid out as sealable data. It is
// needed to recover the raw bytes from an unsealed copy.
type PieceInfo struct {
	RawSize   uint64              `json:"raw_size"`
	PieceSize abi.PaddedPieceSize `json:"piece_size"`
	Nodes     uint64              `json:"nodes"`
}

func (pi PieceInfo) Validate() error {
	if err := pi.PieceSize.Validate(); err != nil {
		return xerrors.Errorf("piece size: %s: %w", err, ErrInvalidArgument)
	}
	if pi.RawSize == 0 || pi.RawSize > uint64(pi.PieceSize.Unpadded()) {
		return xerrors.Errorf("raw size %d does not fit piece size %d: %w", pi.RawSize, pi.PieceSize, ErrInvalidArgument)
	}
	if pi.Nodes != uint64(pi.PieceSize)/NodeSize {
		return wrapMismatch(ErrInvalidArgument, "piece nodes", uint64(pi.PieceSize)/NodeSize, pi.Nodes)
	}
	return validateNodeCount(pi.Nodes)
}

func (pi PieceInfo) Marshal() ([]byte, error) {
	return json.Marshal(pi)
}

func UnmarshalPieceInfo(b []byte) (PieceInfo, error) {
	var pi PieceInfo
	if err := json.Unmarshal(b, &pi); err != nil {
		return PieceInfo{}, xerrors.Errorf("decoding piece info: %s: %w", err, ErrInvalidArgument)
	}
	if err := pi.Validate(); err != nil {
		return PieceInfo{}, err
	}
	return pi, nil
}

// StagePiece fr32-pads the raw file src into dst so that every node of dst
// is a field element. The raw bytes are zero-filled up to the next
// power-of-two piece, whose node count becomes the sealing node count.
func StagePiece(src, dst string) (info PieceInfo, err error) {
	st, err := os.Stat(src)
	if err != nil {
		return PieceInfo{}, ioErr("stage piece", src, err)
	}
	if st.IsDir() || st.Size() == 0 {
		return PieceInfo{}, opErr("stage piece", src, ErrInvalidArgument, xerrors.New("source must be a non-empty file"))
	}
	absSrc, _ := filepath.Abs(src)
	if absDst, _ := filepath.Abs(dst); absSrc == absDst {
		return PieceInfo{}, opErr("stage piece", src, ErrInvalidArgument, xerrors.New("source would be overwritten by the staged data"))
	}

	info.RawSize = uint64(st.Size())
	unpadded := padreader.PaddedSize(info.RawSize)
	info.PieceSize = unpadded.Padded()
	info.Nodes = uint64(info.PieceSize) / NodeSize
	if err := validateNodeCount(info.Nodes); err != nil {
		return PieceInfo{}, opErr("stage piece", src, ErrInvalidNodeCount, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return PieceInfo{}, ioErr("stage piece", src, err)
	}
	defer in.Close() // nolint

	f, err := os.Create(dst)
	if err != nil {
		return PieceInfo{}, ioErr("stage piece", dst, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(dst)
		}
	}()

	if err := fallocate.Fallocate(f, 0, int64(info.PieceSize)); err != nil {
		log.Debugw("preallocating staged piece failed", "path", dst, "error", err)
	}

	r, _ := padreader.New(in, info.RawSize)

	unpadBuf := pool.Get(stageChunk)
	defer pool.Put(unpadBuf)
	padBuf := pool.Get(stageChunk / 127 * 128)
	defer pool.Put(padBuf)

	w := bufio.NewWriterSize(f, len(padBuf))
	var written uint64
	for {
		n, rerr := io.ReadFull(r, unpadBuf)
		if n > 0 {
			if n%127 != 0 {
				return PieceInfo{}, opErr("stage piece", src, ErrIOFailure, xerrors.Errorf("short read of %d bytes", n))
			}
			out := padBuf[:n/127*128]
			fr32.Pad(unpadBuf[:n], out)
			if _, err := w.Write(out); err != nil {
				return PieceInfo{}, ioErr("stage piece", dst, err)
			}
			written += uint64(len(out))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return PieceInfo{}, ioErr("stage piece", src, rerr)
		}
	}
	if written != uint64(info.PieceSize) {
		return PieceInfo{}, opErr("stage piece", src, ErrIOFailure, wrapMismatch(ErrIOFailure, "staged size", info.PieceSize, written))
	}

	if err := multierr.Combine(w.Flush(), f.Sync(), f.Close()); err != nil {
		return PieceInfo{}, ioErr("stage piece", dst, err)
	}

	log.Infow("staged piece", "src", src, "dst", dst, "raw", humanize.IBytes(info.RawSize), "piece", humanize.IBytes(uint64(info.PieceSize)), "nodes", info.Nodes)
	return info, nil
}

// ExtractPiece reverses StagePiece: it removes the fr32 padding from the
// staged (or unsealed) file and writes the first RawSize bytes to out.
func ExtractPiece(staged string, info PieceInfo, out string) (err error) {
	if err := info.Validate(); err != nil {
		return err
	}

	st, err := os.Stat(staged)
	if err != nil {
		return ioErr("extract piece", staged, err)
	}
	if uint64(st.Size()) != uint64(info.PieceSize) {
		return opErr("extract piece", staged, ErrMalformedInput, wrapMismatch(ErrMalformedInput, "staged size", info.PieceSize, st.Size()))
	}
	absStaged, _ := filepath.Abs(staged)
	if absOut, _ := filepath.Abs(out); absStaged == absOut {
		return opErr("extract piece", staged, ErrInvalidArgument, xerrors.New("staged data would be overwritten by the output"))
	}

	in, err := os.Open(staged)
	if err != nil {
		return ioErr("extract piece", staged, err)
	}
	defer in.Close() // nolint

	buf := pool.Get(fr32.BufSize(info.PieceSize))
	defer pool.Put(buf)

	upr, err := fr32.NewUnpadReaderBuf(in, info.PieceSize, buf)
	if err != nil {
		return xerrors.Errorf("creating unpadded reader: %s: %w", err, ErrInvalidArgument)
	}

	f, err := os.Create(out)
	if err != nil {
		return ioErr("extract piece", out, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(out)
		}
	}()

	w := bufio.NewWriterSize(f, stageChunk)
	if _, err := io.CopyN(w, upr, int64(info.RawSize)); err != nil {
		return ioErr("extract piece", staged, err)
	}
	if err := multierr.Combine(w.Flush(), f.Sync(), f.Close()); err != nil {
		return ioErr("extract piece", out, err)
	}

	log.Infow("extracted piece", "staged", staged, "out", out, "raw", humanize.IBytes(info.RawSize))
	return nil
}
