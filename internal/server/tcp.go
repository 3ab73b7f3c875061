package server

import (
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"bytematch/internal/classify"
	"bytematch/internal/metrics"
)

type TCPServer struct {
	ListenAddr string
	Handler    *classify.Handler
	Verbose    bool
}

func NewTCPServer(listenAddr string, handler *classify.Handler, verbose bool) *TCPServer {
	return &TCPServer{
		ListenAddr: listenAddr,
		Handler:    handler,
		Verbose:    verbose,
	}
}

func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		log.Err(err).Msgf("failed to listen on TCP %s", s.ListenAddr)
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until it is closed. Each
// connection is classified on its own goroutine.
func (s *TCPServer) Serve(listener net.Listener) error {
	defer listener.Close()

	log.Info().Msgf("Classifier listening on TCP %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeAccept, "tcp").Inc()
			log.Err(err).Msg("Error accepting TCP connection:")
			continue
		}

		if s.Verbose {
			log.Info().Msgf("Accepted TCP connection from %s", conn.RemoteAddr())
		}
		go s.Handler.HandleTCP(conn)
	}
}
