package sdr

import (
	"encoding/binary"
	"math/bits"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/sha256-simd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Graph is the stacked DRG: every node has Degree base parents in its own
// layer and ExpansionDegree expansion parents in the layer below. Parents are
// kept in two flat arenas indexed by node.
type Graph struct {
	Nodes           uint64
	Degree          int
	ExpansionDegree int

	base []uint32
	exp  []uint32
}

type graphKey struct {
	nodes   uint64
	degree  uint32
	exp     uint32
	porepID PoRepID
}

const graphCacheSize = 4

var graphCache = func() *lru.Cache[graphKey, *Graph] {
	c, err := lru.New[graphKey, *Graph](graphCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

// GraphFor returns the graph described by p, building it on first use.
func GraphFor(p SetupParams) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := graphKey{nodes: p.Nodes, degree: p.Degree, exp: p.ExpansionDegree, porepID: p.PoRepID}
	if g, ok := graphCache.Get(key); ok {
		return g, nil
	}

	g, err := buildGraph(p)
	if err != nil {
		return nil, xerrors.Errorf("building graph: %w", err)
	}
	graphCache.Add(key, g)
	return g, nil
}

func buildGraph(p SetupParams) (*Graph, error) {
	g := &Graph{
		Nodes:           p.Nodes,
		Degree:          int(p.Degree),
		ExpansionDegree: int(p.ExpansionDegree),
		base:            make([]uint32, p.Nodes*uint64(p.Degree)),
		exp:             make([]uint32, p.Nodes*uint64(p.ExpansionDegree)),
	}
	fp := newFeistel(p.PoRepID, p.Nodes*uint64(p.ExpansionDegree))

	workers := uint64(runtime.NumCPU())
	chunk := max((p.Nodes+workers-1)/workers, 256)

	var eg errgroup.Group
	for start := uint64(0); start < p.Nodes; start += chunk {
		start, end := start, min(start+chunk, p.Nodes)
		eg.Go(func() error {
			for i := start; i < end; i++ {
				g.fillBase(p.PoRepID, i)
				g.fillExp(fp, i)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	log.Debugw("built graph", "nodes", p.Nodes, "degree", p.Degree, "expansion", p.ExpansionDegree)
	return g, nil
}

// fillBase samples the base parents of node i. The first parent is always
// i-1, the others are drawn from buckets of exponentially growing distance.
func (g *Graph) fillBase(porepID PoRepID, i uint64) {
	if i == 0 {
		return
	}
	row := g.base[i*uint64(g.Degree) : (i+1)*uint64(g.Degree)]
	row[0] = uint32(i - 1)

	var buf [32 + 3 + 8 + 4]byte
	copy(buf[:32], porepID[:])
	copy(buf[32:35], "drg")
	binary.LittleEndian.PutUint64(buf[35:], i)

	bl := uint64(bits.Len64(i))
	for k := 1; k < g.Degree; k++ {
		binary.LittleEndian.PutUint32(buf[43:], uint32(k))
		h := sha256.Sum256(buf[:])
		r := binary.LittleEndian.Uint64(h[:8])

		m := 1 + r%bl
		lo := uint64(1) << (m - 1)
		hi := min(uint64(1)<<m, i)
		dist := lo + (r>>8)%(hi-lo+1)

		row[k] = uint32(i - dist)
	}
}

func (g *Graph) fillExp(fp *feistel, i uint64) {
	e := uint64(g.ExpansionDegree)
	row := g.exp[i*e : (i+1)*e]
	for k := uint64(0); k < e; k++ {
		row[k] = uint32(fp.permute(i*e+k) / e)
	}
}

// BaseParents returns the same-layer parents of node i; node 0 has none.
func (g *Graph) BaseParents(i uint64) []uint32 {
	if i == 0 {
		return nil
	}
	d := uint64(g.Degree)
	return g.base[i*d : (i+1)*d]
}

// ExpParents returns the previous-layer parents of node i.
func (g *Graph) ExpParents(i uint64) []uint32 {
	e := uint64(g.ExpansionDegree)
	return g.exp[i*e : (i+1)*e]
}

const feistelRounds = 4

// feistel is a keyed permutation of [0, domain), cycle-walking over the
// smallest even-bit power of two that covers the domain.
type feistel struct {
	key    PoRepID
	domain uint64
	half   uint
	mask   uint64
}

func newFeistel(key PoRepID, domain uint64) *feistel {
	n := uint(bits.Len64(domain - 1))
	if n < 2 {
		n = 2
	}
	n += n & 1
	return &feistel{key: key, domain: domain, half: n / 2, mask: (uint64(1) << (n / 2)) - 1}
}

func (f *feistel) permute(x uint64) uint64 {
	for {
		x = f.encrypt(x)
		if x < f.domain {
			return x
		}
	}
}

func (f *feistel) encrypt(x uint64) uint64 {
	left, right := x>>f.half, x&f.mask

	var buf [32 + 3 + 1 + 8]byte
	copy(buf[:32], f.key[:])
	copy(buf[32:35], "exp")
	for round := 0; round < feistelRounds; round++ {
		buf[35] = byte(round)
		binary.LittleEndian.PutUint64(buf[36:], right)
		h := sha256.Sum256(buf[:])

		left, right = right, left^(binary.LittleEndian.Uint64(h[:8])&f.mask)
	}
	return left<<f.half | right
}
