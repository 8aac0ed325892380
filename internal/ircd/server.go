package ircd

import (
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/boxcat/ircd/internal/config"
)

// Server is the accept loop (§4.H): an external collaborator that, per
// admitted socket, constructs a fresh Connection with its own bounded
// sink and hands it the registry reference. It holds no algorithm of
// substance beyond bookkeeping.
type Server struct {
	Registry *Registry
	Config   *config.Config
	Log      *logrus.Logger

	listener net.Listener
	wg       conc.WaitGroup
}

// NewServer constructs a Server around an already-built Registry, so
// tests can drive a Registry directly without ever calling Serve (§9
// "Global state": the registry must be constructible and testable
// without a process restart).
func NewServer(reg *Registry, cfg *config.Config, log *logrus.Logger) *Server {
	return &Server{Registry: reg, Config: cfg, Log: log}
}

// Serve binds the configured insecure listen address and accepts
// connections until the listener is closed (via Shutdown or an external
// error). Each accepted socket gets its own Connection, run on its own
// goroutine tracked by the server's WaitGroup.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.Config.InsecureListenAddress)
	if err != nil {
		return errors.Wrap(err, "binding insecure listen address")
	}
	s.listener = ln

	s.Log.WithField("addr", ln.Addr().String()).Info("accepting connections")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedError(err) {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}

		entry := s.Log.WithField("remote_addr", conn.RemoteAddr().String())
		entry.Info("accepted connection")

		c := NewConnection(conn, s.Registry, s.Config, entry)
		s.wg.Go(func() {
			c.Run()
			entry.Info("connection closed")
		})
	}
}

// Shutdown closes the listener, causing Serve to return once the
// in-flight Accept unblocks, then waits for every connection task to
// observe cancellation and exit (§9 "Global state" teardown ordering).
func (s *Server) Shutdown() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
