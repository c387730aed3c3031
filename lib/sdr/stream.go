package sdr

import (
	"io"
	"runtime"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/xerrors"
)

const (
	bufSz    = 4 << 20
	nWorkers = 24
)

// nodeOp combines one node of each input into out.
type nodeOp func(out, a, b *fr.Element)

func addNodes(out, data, key *fr.Element) { out.Add(data, key) }

func subNodes(out, replica, key *fr.Element) { out.Sub(replica, key) }

// EncodeStream writes data + key (mod r) node by node.
func EncodeStream(data, key io.Reader, out io.Writer, workers int) error {
	return transformStream(data, key, out, workers, addNodes)
}

// DecodeStream writes replica - key (mod r) node by node.
func DecodeStream(replica, key io.Reader, out io.Writer, workers int) error {
	return transformStream(replica, key, out, workers, subNodes)
}

type job struct {
	a, b    []byte
	chunkID int64
}

type result struct {
	data    []byte
	err     error
	chunkID int64
}

// transformStream reads both inputs in chunks, transforms chunks on a worker
// pool and writes results back in input order.
func transformStream(a, b io.Reader, out io.Writer, workers int, op nodeOp) error {
	if workers <= 0 {
		workers = min(nWorkers, runtime.NumCPU())
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	jobChan := make(chan job, workers)
	resultChan := make(chan result, workers)
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				resultChan <- runJob(j, op)
			}
		}()
	}

	go func() {
		defer close(jobChan)
		chunkID := int64(0)
		for {
			abuf := pool.Get(bufSz)
			bbuf := pool.Get(bufSz)

			an, err := io.ReadFull(a, abuf)
			if err != nil && err != io.ErrUnexpectedEOF {
				pool.Put(abuf)
				pool.Put(bbuf)
				if err != io.EOF {
					errChan <- err
				}
				return
			}

			bn, err := io.ReadFull(b, bbuf[:an])
			if err != nil || bn != an {
				pool.Put(abuf)
				pool.Put(bbuf)
				errChan <- xerrors.Errorf("key stream shorter than input: %w", io.ErrUnexpectedEOF)
				return
			}

			select {
			case jobChan <- job{a: abuf[:an], b: bbuf[:an], chunkID: chunkID}:
			case <-done:
				pool.Put(abuf)
				pool.Put(bbuf)
				return
			}
			chunkID++

			if an < bufSz {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	expectedChunkID := int64(0)
	pending := make(map[int64]result)

	for r := range resultChan {
		pending[r.chunkID] = r
		for {
			next, ok := pending[expectedChunkID]
			if !ok {
				break
			}
			delete(pending, expectedChunkID)
			expectedChunkID++

			if firstErr == nil {
				if next.err != nil {
					firstErr = next.err
				} else if _, err := out.Write(next.data); err != nil {
					firstErr = err
				}
				if firstErr != nil {
					close(done)
				}
			}
			if next.data != nil {
				pool.Put(next.data)
			}
		}
	}
	for _, r := range pending {
		if r.data != nil {
			pool.Put(r.data)
		}
	}

	close(errChan)
	if firstErr != nil {
		return firstErr
	}
	return <-errChan
}

func runJob(j job, op nodeOp) result {
	defer pool.Put(j.a)
	defer pool.Put(j.b)

	if len(j.a)%NodeSize != 0 {
		return result{chunkID: j.chunkID, err: xerrors.Errorf("chunk %d: %d bytes is not a whole number of nodes: %w", j.chunkID, len(j.a), ErrMalformedInput)}
	}

	out := pool.Get(len(j.a))
	var x, y, z fr.Element
	for off := 0; off < len(j.a); off += NodeSize {
		var err error
		if x, err = fr.LittleEndian.Element((*[NodeSize]byte)(j.a[off : off+NodeSize])); err != nil {
			pool.Put(out)
			return result{chunkID: j.chunkID, err: xerrors.Errorf("node %d: %w", (j.chunkID*bufSz+int64(off))/NodeSize, ErrMalformedInput)}
		}
		if y, err = fr.LittleEndian.Element((*[NodeSize]byte)(j.b[off : off+NodeSize])); err != nil {
			pool.Put(out)
			return result{chunkID: j.chunkID, err: xerrors.Errorf("key node %d: %w", (j.chunkID*bufSz+int64(off))/NodeSize, ErrMalformedInput)}
		}
		op(&z, &x, &y)
		fr.LittleEndian.PutElement((*[NodeSize]byte)(out[off:off+NodeSize]), z)
	}
	return result{chunkID: j.chunkID, data: out}
}
