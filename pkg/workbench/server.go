package workbench

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/cattail/pkg/tap"
)

const shutdownTimeout = 30 * time.Second

// Server drives the tap router and the HTTP server of a workbench.
type Server struct {
	wb       *Workbench
	tap      *tap.Tap
	httpSrv  *http.Server
	listener net.Listener
}

type ServerOptions struct {
	Addr    string
	Handler http.Handler
	Tap     *tap.Tap
	// Listener replaces Addr when set.
	Listener net.Listener
}

func NewServer(wb *Workbench, opts ServerOptions) (*Server, error) {
	if wb == nil {
		return nil, errors.New("workbench is nil")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is nil")
	}
	return &Server{
		wb:       wb,
		tap:      opts.Tap,
		listener: opts.Listener,
		httpSrv: &http.Server{
			Addr:              opts.Addr,
			Handler:           opts.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM, then
// disposes every container before the HTTP server stops.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.httpSrv.Addr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", s.httpSrv.Addr)
		}
	}

	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error { return s.tap.Run(srvCtx) })

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()

		s.wb.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if err := s.tap.Close(); err != nil {
			log.Error().Err(err).Msg("tap close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting cattail workbench")
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}
