package server

import (
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"bytematch/internal/classify"
)

// maxDatagram bounds one UDP source.
const maxDatagram = 65507

type UDPServer struct {
	ListenAddr string
	Handler    *classify.Handler
	Verbose    bool
}

func NewUDPServer(listenAddr string, handler *classify.Handler, verbose bool) *UDPServer {
	return &UDPServer{
		ListenAddr: listenAddr,
		Handler:    handler,
		Verbose:    verbose,
	}
}

func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.ListenAddr)
	if err != nil {
		log.Err(err).Msg("failed to resolve UDP address:")
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Err(err).Msgf("failed to listen on UDP %s", s.ListenAddr)
		return err
	}
	return s.Serve(conn)
}

// Serve classifies every datagram read from conn as one finite source.
func (s *UDPServer) Serve(conn *net.UDPConn) error {
	defer conn.Close()

	log.Info().Msgf("Classifier listening on UDP %s", conn.LocalAddr())

	buffer := make([]byte, maxDatagram)

	for {
		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Err(err).Msgf("Error reading from UDP:")
			continue
		}

		if s.Verbose {
			log.Info().Msgf("Received %d bytes from %s", n, clientAddr)
		}

		payload := make([]byte, n)
		copy(payload, buffer[:n])

		go s.Handler.HandleUDP(conn, clientAddr, payload)
	}
}
