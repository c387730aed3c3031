package ffi

import (
	"context"
	"time"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

func (sb *SealCalls) Unseal(ctx context.Context, replicaPath string, params, replicaID []byte, out string) Handle {
	return sb.wrap("unseal", func() (any, error) {
		p, err := sdr.UnmarshalSetupParams(params)
		if err != nil {
			return nil, err
		}
		id, err := decodeReplicaID(replicaID)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		if err := sdr.Unseal(ctx, replicaPath, p, id, out, sb.opts...); err != nil {
			return nil, err
		}

		log.Infow("unsealed", "replica", replicaPath, "duration", time.Since(start), "MiB/s", float64(p.DataSize())/(1<<20)/time.Since(start).Seconds())
		return nil, nil
	})
}
