package proof

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// maxCodecSlice bounds every length prefix read from an untrusted stream.
const maxCodecSlice = 1 << 16

func ReadLE[T any](r io.Reader) (T, error) {
	var out T
	err := binary.Read(r, binary.LittleEndian, &out)
	return out, err
}

func WriteLE[T any](w io.Writer, data T) error {
	return binary.Write(w, binary.LittleEndian, data)
}

// ReadLen reads a u64 length prefix and rejects anything above max.
func ReadLen(r io.Reader, max uint64) (uint64, error) {
	l, err := ReadLE[uint64](r)
	if err != nil {
		return 0, err
	}
	if l > max {
		return 0, xerrors.Errorf("length prefix %d exceeds limit %d", l, max)
	}
	return l, nil
}

func ReadString(r io.Reader) (string, error) {
	l, err := ReadLen(r, maxCodecSlice)
	if err != nil {
		return "", xerrors.Errorf("failed to read string length: %w", err)
	}

	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", xerrors.Errorf("failed to read string: %w", err)
	}

	return string(buf), nil
}

func WriteString(w io.Writer, s string) error {
	if err := WriteLE(w, uint64(len(s))); err != nil {
		return xerrors.Errorf("failed to write string length: %w", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return xerrors.Errorf("failed to write string: %w", err)
	}
	return nil
}

func ReadDomain[H Domain](r io.Reader) (H, error) {
	var b [NODE_SIZE]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return H(b), err
	}
	return H(b), nil
}

func WriteDomain[H Domain](w io.Writer, h H) error {
	b := [NODE_SIZE]byte(h)
	_, err := w.Write(b[:])
	return err
}
