package sdr

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/bits"

	"github.com/minio/sha256-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/sdr-porep/lib/proof"
	poseidondst "github.com/filecoin-project/sdr-porep/lib/proof/poseidon"
)

const (
	NodeSize = proof.NODE_SIZE

	DefaultBaseDegree      = 6
	DefaultExpansionDegree = 8
	DefaultLayers          = 11

	MinNodes = 2
	MaxNodes = 1 << 24

	maxDegree = 64
)

type PoRepID [32]byte

func (id PoRepID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

func (id *PoRepID) UnmarshalText(b []byte) error {
	return decodeHex32(b, (*[32]byte)(id))
}

func decodeHex32(b []byte, out *[32]byte) error {
	if hex.DecodedLen(len(b)) != 32 {
		return xerrors.Errorf("expected 64 hex characters, got %d", len(b))
	}
	_, err := hex.Decode(out[:], b)
	return err
}

// SetupParams fixes the graph shape shared by sealing, proving and verification.
type SetupParams struct {
	Nodes           uint64  `json:"nodes"`
	Degree          uint32  `json:"degree"`
	ExpansionDegree uint32  `json:"expansion_degree"`
	Layers          uint32  `json:"layers"`
	PoRepID         PoRepID `json:"porep_id"`
}

type ParamOption func(*paramOpts)

type paramOpts struct {
	layers          uint32
	degree          uint32
	expansionDegree uint32
	porepID         *PoRepID
}

func WithLayers(layers uint32) ParamOption {
	return func(o *paramOpts) { o.layers = layers }
}

func WithDegrees(base, expansion uint32) ParamOption {
	return func(o *paramOpts) {
		o.degree = base
		o.expansionDegree = expansion
	}
}

// WithPoRepID pins the graph seed instead of deriving it from the shape.
func WithPoRepID(id PoRepID) ParamOption {
	return func(o *paramOpts) { o.porepID = &id }
}

// GenerateSetupParams derives the parameters for a graph of nodes nodes.
// The result depends only on the arguments.
func GenerateSetupParams(nodes uint64, opts ...ParamOption) (SetupParams, error) {
	o := paramOpts{
		layers:          DefaultLayers,
		degree:          DefaultBaseDegree,
		expansionDegree: DefaultExpansionDegree,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := SetupParams{
		Nodes:           nodes,
		Degree:          o.degree,
		ExpansionDegree: o.expansionDegree,
		Layers:          o.layers,
	}
	if o.porepID != nil {
		p.PoRepID = *o.porepID
	} else {
		p.PoRepID = DerivePoRepID(nodes, o.layers, o.degree, o.expansionDegree)
	}

	if err := p.Validate(); err != nil {
		return SetupParams{}, err
	}
	return p, nil
}

func DerivePoRepID(nodes uint64, layers, degree, expansionDegree uint32) PoRepID {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:], nodes)
	binary.LittleEndian.PutUint32(buf[8:], layers)
	binary.LittleEndian.PutUint32(buf[12:], degree)
	binary.LittleEndian.PutUint32(buf[16:], expansionDegree)

	h := sha256.New()
	h.Write([]byte("sdr-porep/porep-id"))
	h.Write(buf[:])

	var id PoRepID
	copy(id[:], h.Sum(nil))
	return id
}

func validateNodeCount(nodes uint64) error {
	if nodes < MinNodes || nodes > MaxNodes || bits.OnesCount64(nodes) != 1 {
		return xerrors.Errorf("%d nodes (must be a power of two in [%d, %d]): %w", nodes, MinNodes, MaxNodes, ErrInvalidNodeCount)
	}
	return nil
}

func (p SetupParams) Validate() error {
	if err := validateNodeCount(p.Nodes); err != nil {
		return err
	}
	if !poseidondst.IsSupportedArity(int(p.Layers)) {
		return xerrors.Errorf("%d layers (supported %v): %w", p.Layers, poseidondst.SupportedArities, ErrInvalidArgument)
	}
	if p.Degree < 2 || p.Degree > maxDegree {
		return xerrors.Errorf("base degree %d out of range [2, %d]: %w", p.Degree, maxDegree, ErrInvalidArgument)
	}
	if p.ExpansionDegree < 1 || p.ExpansionDegree > maxDegree {
		return xerrors.Errorf("expansion degree %d out of range [1, %d]: %w", p.ExpansionDegree, maxDegree, ErrInvalidArgument)
	}
	return nil
}

// DataSize is the byte length of the data and replica files.
func (p SetupParams) DataSize() abi.PaddedPieceSize {
	return abi.PaddedPieceSize(p.Nodes * NodeSize)
}

// TreeDepth is the length of an inclusion path in any tree over the nodes.
func (p SetupParams) TreeDepth() int {
	return bits.TrailingZeros64(p.Nodes)
}

func (p SetupParams) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalSetupParams(b []byte) (SetupParams, error) {
	var p SetupParams
	if err := json.Unmarshal(b, &p); err != nil {
		return SetupParams{}, opErr("decode setup params", "", ErrMalformedArtifact, err)
	}
	if err := p.Validate(); err != nil {
		return SetupParams{}, err
	}
	return p, nil
}
