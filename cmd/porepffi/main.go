// Command porepffi builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libporep.so ./cmd/porepffi
//
// Every export returns a NUL-terminated JSON envelope {"ok","value","kind","error"}
// owned by the library. The host must hand each one back to release exactly once.
package main

/*
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

import (
	"bytes"
	"context"
	"sync"
	"unsafe"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/deps/config"
	"github.com/filecoin-project/sdr-porep/lib/ffi"
)

var log = logging.Logger("porepffi")

var (
	initOnce sync.Once
	calls    *ffi.SealCalls

	lk      sync.Mutex
	handles = map[unsafe.Pointer]ffi.Handle{}
)

func sealCalls() *ffi.SealCalls {
	initOnce.Do(func() {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			log.Errorw("loading config, using defaults", "error", err)
			cfg = config.DefaultPoRepConfig()
		}
		if err := cfg.Logging.Apply(); err != nil {
			log.Warnw("applying log levels", "error", err)
		}

		opts := []ffi.Option{
			ffi.WithSealOptions(cfg.Seal.SealOptions(nil)...),
			ffi.WithStoreOptions(cfg.Seal.StoreOptions()...),
		}
		if po, err := cfg.Seal.ParamOptions(); err != nil {
			log.Errorw("ignoring seal params config", "error", err)
		} else {
			opts = append(opts, ffi.WithParamOptions(po...))
		}
		calls = ffi.NewSealCalls(ffi.NewArena(), opts...)
	})
	return calls
}

// export copies the envelope behind h into C memory and remembers which handle it came from.
func export(h ffi.Handle) *C.char {
	var cs *C.char
	err := sealCalls().Arena().Export(h, func(b []byte) error {
		if bytes.IndexByte(b, 0) >= 0 {
			return xerrors.New("envelope contains a NUL byte")
		}
		cs = C.CString(string(b))

		lk.Lock()
		handles[unsafe.Pointer(cs)] = h
		lk.Unlock()
		return nil
	})
	if err != nil {
		log.Errorw("exporting handle", "handle", h, "error", err)
		return nil
	}
	return cs
}

//export release
func release(p *C.char) {
	ptr := unsafe.Pointer(p)

	lk.Lock()
	h, ok := handles[ptr]
	delete(handles, ptr)
	lk.Unlock()

	if !ok {
		log.Warnw("release of unknown pointer ignored", "ptr", ptr)
		return
	}
	if err := sealCalls().Arena().Release(h); err != nil {
		log.Warnw("releasing handle", "handle", h, "error", err)
	}
	C.free(ptr)
}

//export initialize_target_dir
func initialize_target_dir(dir *C.char, needClean C.int) *C.char {
	return export(sealCalls().InitTargetDir(C.GoString(dir), needClean != 0))
}

//export generate_sample_file
func generate_sample_file(size C.uint64_t, path *C.char) *C.char {
	return export(sealCalls().GenerateSampleFile(uint64(size), C.GoString(path)))
}

//export stage_piece
func stage_piece(src, dst *C.char) *C.char {
	return export(sealCalls().StagePiece(C.GoString(src), C.GoString(dst)))
}

//export extract_piece
func extract_piece(staged, pieceInfo, out *C.char) *C.char {
	return export(sealCalls().ExtractPiece(C.GoString(staged), []byte(C.GoString(pieceInfo)), C.GoString(out)))
}

//export generate_setup_params
func generate_setup_params(nodes C.uint64_t) *C.char {
	return export(sealCalls().GenerateSetupParams(uint64(nodes)))
}

//export generate_store_config
func generate_store_config(nodes C.uint64_t, dir *C.char) *C.char {
	return export(sealCalls().GenerateStoreConfig(uint64(nodes), C.GoString(dir)))
}

//export count_node_num
func count_node_num(path *C.char) *C.char {
	return export(sealCalls().CountNodes(C.GoString(path)))
}

//export generate_replica_id
func generate_replica_id() *C.char {
	return export(sealCalls().GenerateReplicaID())
}

//export generate_challenge
func generate_challenge(nodes C.uint64_t, count C.int) *C.char {
	return export(sealCalls().GenerateChallenges(uint64(nodes), int(count)))
}

//export seal
func seal(src, params, cfg, replicaID *C.char) *C.char {
	return export(sealCalls().Seal(context.Background(), C.GoString(src),
		[]byte(C.GoString(params)), []byte(C.GoString(cfg)), []byte(C.GoString(replicaID))))
}

//export prove
func prove(replica, params, replicaID, challenges, out *C.char) *C.char {
	return export(sealCalls().Prove(context.Background(), C.GoString(replica),
		[]byte(C.GoString(params)), []byte(C.GoString(replicaID)), []byte(C.GoString(challenges)), C.GoString(out)))
}

//export verify
func verify(replica, params, replicaID, challenges, proofPath *C.char) *C.char {
	return export(sealCalls().Verify(context.Background(), C.GoString(replica),
		[]byte(C.GoString(params)), []byte(C.GoString(replicaID)), []byte(C.GoString(challenges)), C.GoString(proofPath)))
}

//export unseal
func unseal(replica, params, replicaID, out *C.char) *C.char {
	return export(sealCalls().Unseal(context.Background(), C.GoString(replica),
		[]byte(C.GoString(params)), []byte(C.GoString(replicaID)), C.GoString(out)))
}

func main() {}
