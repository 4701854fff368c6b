// Package engine is the composition root: it owns the set of protocol
// tickers (ftpd.Server, davd.Server) a process runs, drives them on a
// ~33ms cooperative schedule, and gives the host ABI (or, on the
// desktop, cmd/paperportal) a single Start/Run/Stop lifecycle instead
// of one per variant.
//
// Nothing here re-implements buffering or I/O: each Ticker already
// owns its own fixed buffers and adapters; engine only sequences
// their Tick calls and aggregates their lifecycle.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paperportal/fileserver/hostio"
)

// TickInterval is the host's cooperative scheduling period: the guest
// engine is invoked roughly this often.
const TickInterval = 33 * time.Millisecond

// Ticker is implemented by ftpd.Server and davd.Server: a protocol
// engine driven entirely from Tick, with its own Start/Stop lifecycle.
type Ticker interface {
	Start() error
	Stop() error
	Running() bool
	Tick(now time.Time)
}

// Server aggregates one or more Tickers under a single lifecycle. A
// real device build runs exactly one (the FTP or the WebDAV variant);
// the desktop dev-harness may run both at once against the same
// filesystem root, since each binds its own listener and neither
// shares mutable state with the other.
type Server struct {
	clock   hostio.Clock
	tickers []Ticker
	log     *logrus.Entry
}

// New constructs a Server over the given tickers. It performs no I/O;
// call Start to bind each ticker's listener.
func New(clock hostio.Clock, tickers ...Ticker) *Server {
	return &Server{
		clock:   clock,
		tickers: tickers,
		log:     logrus.WithField("component", "engine"),
	}
}

// Start starts every ticker in order. If one fails, the tickers
// already started are stopped before the error is returned, so a
// partially-started Server never lingers.
func (s *Server) Start() error {
	for i, t := range s.tickers {
		if err := t.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = s.tickers[j].Stop()
			}
			return err
		}
	}
	s.log.Info("engine started")
	return nil
}

// Stop stops every ticker, in reverse start order, collecting no
// error (each Ticker.Stop is itself idempotent and best-effort).
// Calling Stop any number of additional times is a no-op because
// every Ticker.Stop already is.
func (s *Server) Stop() error {
	for i := len(s.tickers) - 1; i >= 0; i-- {
		_ = s.tickers[i].Stop()
	}
	s.log.Info("engine stopped")
	return nil
}

// Tick advances every ticker by one scheduling step. It never blocks
// longer than the tickers' own adapter timeouts.
func (s *Server) Tick(now time.Time) {
	for _, t := range s.tickers {
		t.Tick(now)
	}
}

// Run drives Tick on TickInterval until ctx is cancelled, then stops
// every ticker before returning. It is the desktop dev-harness's
// stand-in for the real host ABI's pp_tick entrypoint.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}
