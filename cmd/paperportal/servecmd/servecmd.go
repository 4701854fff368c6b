// Package servecmd wires the ftpd/davd engines into Cobra subcommands
// of "paperportal serve": a package-level *cobra.Command per protocol,
// a flat Opt/DefaultOpt struct populated by pflag in init(), and a run
// closure that constructs the adapters, starts the engine, and blocks
// until an OS signal or the context is cancelled.
package servecmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/paperportal/fileserver/engine"
	"github.com/paperportal/fileserver/hostio/rtc"
)

// Command is "paperportal serve", the parent of the per-protocol
// subcommands registered by ftp.go and webdav.go.
var Command = &cobra.Command{
	Use:   "serve",
	Short: "Serve a filesystem root over FTP or WebDAV",
}

// runEngine ensures root exists, starts srv, and blocks until either
// an OS interrupt/terminate signal arrives or ctx is cancelled,
// stopping srv cleanly in both cases. It uses errgroup to run the
// tick loop and a signal watcher concurrently.
func runEngine(ctx context.Context, root string, srv *engine.Server) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return srv.Run(gCtx)
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-gCtx.Done():
			return nil
		case sig := <-sigCh:
			logrus.WithField("signal", sig).Info("paperportal: shutting down")
			cancel()
			return nil
		}
	})
	return g.Wait()
}

var clock = rtc.System{}
