package reqcontext

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("reqcontext")

const metadataKey = "reqContext"

// ReqContext returns the context of a cli run. The first call installs a
// handler that cancels it on SIGTERM, SIGINT or SIGHUP; later calls on the
// same app return the same context. Not safe for concurrent execution.
func ReqContext(cctx *cli.Context) context.Context {
	if ctx, ok := cctx.App.Metadata[metadataKey].(context.Context); ok {
		return ctx
	}

	ctx, done := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 2)
	go func() {
		sig := <-sigChan
		log.Warnw("received signal, cancelling", "signal", sig)
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]interface{}{}
	}
	cctx.App.Metadata[metadataKey] = ctx
	return ctx
}
