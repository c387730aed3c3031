package ffi

import (
	"context"
	"encoding/json"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

var log = logging.Logger("ffi")

// SealCalls exposes the engine to a foreign host. Inputs are the serialized
// artifacts the host received from earlier calls; every method returns a
// handle to an Envelope that the host must release.
type SealCalls struct {
	arena *Arena
	opts  []sdr.Option

	storeOpts []sdr.StoreOption
	paramOpts []sdr.ParamOption
}

type Option func(*SealCalls)

func WithSealOptions(opts ...sdr.Option) Option {
	return func(sb *SealCalls) { sb.opts = append(sb.opts, opts...) }
}

func WithStoreOptions(opts ...sdr.StoreOption) Option {
	return func(sb *SealCalls) { sb.storeOpts = append(sb.storeOpts, opts...) }
}

func WithParamOptions(opts ...sdr.ParamOption) Option {
	return func(sb *SealCalls) { sb.paramOpts = append(sb.paramOpts, opts...) }
}

func NewSealCalls(arena *Arena, opts ...Option) *SealCalls {
	sb := &SealCalls{arena: arena}
	for _, opt := range opts {
		opt(sb)
	}
	return sb
}

func (sb *SealCalls) Arena() *Arena {
	return sb.arena
}

// Commitments is the value returned by Seal.
type Commitments struct {
	CommD string `json:"comm_d"`
	CommR string `json:"comm_r"`
}

func (sb *SealCalls) InitTargetDir(dir string, needClean bool) Handle {
	return sb.wrap("init_target_dir", func() (any, error) {
		return nil, sdr.InitTargetDir(dir, needClean)
	})
}

func (sb *SealCalls) GenerateSampleFile(size uint64, path string) Handle {
	return sb.wrap("generate_sample_file", func() (any, error) {
		return nil, sdr.GenerateSampleFile(size, path)
	})
}

func (sb *SealCalls) GenerateSetupParams(nodes uint64) Handle {
	return sb.wrap("generate_setup_params", func() (any, error) {
		p, err := sdr.GenerateSetupParams(nodes, sb.paramOpts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (sb *SealCalls) GenerateStoreConfig(nodes uint64, dir string) Handle {
	return sb.wrap("generate_store_config", func() (any, error) {
		cfg, err := sdr.GenerateStoreConfig(nodes, dir, sb.storeOpts...)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	})
}

func (sb *SealCalls) CountNodes(path string) Handle {
	return sb.wrap("count_node_num", func() (any, error) {
		n, err := sdr.CountNodes(path)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
}

func (sb *SealCalls) GenerateReplicaID() Handle {
	return sb.wrap("generate_replica_id", func() (any, error) {
		id, err := sdr.GenerateReplicaID()
		if err != nil {
			return nil, err
		}
		return id, nil
	})
}

func (sb *SealCalls) GenerateChallenges(nodes uint64, count int) Handle {
	return sb.wrap("generate_challenge", func() (any, error) {
		c, err := sdr.GenerateChallenges(nodes, count)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func (sb *SealCalls) Seal(ctx context.Context, src string, params, cfg, replicaID []byte) Handle {
	return sb.wrap("seal", func() (any, error) {
		p, err := sdr.UnmarshalSetupParams(params)
		if err != nil {
			return nil, err
		}
		sc, err := sdr.UnmarshalStoreConfig(cfg)
		if err != nil {
			return nil, err
		}
		id, err := decodeReplicaID(replicaID)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		commD, commR, err := sdr.Seal(ctx, src, p, sc, id, sb.opts...)
		if err != nil {
			return nil, err
		}
		log.Infow("sealed", "src", src, "took", time.Since(start))

		return commitments(sdr.Tau{CommD: commD, CommR: commR})
	})
}

func (sb *SealCalls) Prove(ctx context.Context, replicaPath string, params, replicaID, challenges []byte, out string) Handle {
	return sb.wrap("prove", func() (any, error) {
		p, id, ch, err := decodeStatement(params, replicaID, challenges)
		if err != nil {
			return nil, err
		}
		return nil, sdr.Prove(ctx, replicaPath, p, id, ch, out, sb.opts...)
	})
}

// Verify checks proofPath against the commitments stored next to replicaPath.
func (sb *SealCalls) Verify(ctx context.Context, replicaPath string, params, replicaID, challenges []byte, proofPath string) Handle {
	return sb.wrap("verify", func() (any, error) {
		p, id, ch, err := decodeStatement(params, replicaID, challenges)
		if err != nil {
			return nil, err
		}
		ok, err := sdr.VerifyReplica(ctx, replicaPath, p, id, ch, proofPath, sb.opts...)
		if err != nil {
			return nil, err
		}
		return ok, nil
	})
}

func decodeStatement(params, replicaID, challenges []byte) (sdr.SetupParams, sdr.ReplicaID, sdr.Challenges, error) {
	p, err := sdr.UnmarshalSetupParams(params)
	if err != nil {
		return sdr.SetupParams{}, sdr.ReplicaID{}, sdr.Challenges{}, err
	}
	id, err := decodeReplicaID(replicaID)
	if err != nil {
		return sdr.SetupParams{}, sdr.ReplicaID{}, sdr.Challenges{}, err
	}
	ch, err := sdr.UnmarshalChallenges(challenges)
	if err != nil {
		return sdr.SetupParams{}, sdr.ReplicaID{}, sdr.Challenges{}, err
	}
	return p, id, ch, nil
}

// decodeReplicaID accepts the JSON string produced by GenerateReplicaID.
func decodeReplicaID(b []byte) (sdr.ReplicaID, error) {
	var id sdr.ReplicaID
	if err := json.Unmarshal(b, &id); err != nil {
		return sdr.ReplicaID{}, xerrors.Errorf("decoding replica id: %w", sdr.ErrMalformedArtifact)
	}
	return id, nil
}

func commitments(t sdr.Tau) (Commitments, error) {
	d, err := t.CommDCid()
	if err != nil {
		return Commitments{}, err
	}
	r, err := t.CommRCid()
	if err != nil {
		return Commitments{}, err
	}
	return Commitments{CommD: d.String(), CommR: r.String()}, nil
}

// ReplicaPath is where Seal places the replica of src inside a store.
func ReplicaPath(src string, cfg []byte) (string, error) {
	sc, err := sdr.UnmarshalStoreConfig(cfg)
	if err != nil {
		return "", err
	}
	return paths.ReplicaPath(src, sc.Path), nil
}
