package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// loadTLSConfig builds the TLS configuration for the controller connection
func loadTLSConfig(config TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	caCert := config.CACertData
	if len(caCert) == 0 && config.CACertPath != "" {
		var err error
		if caCert, err = os.ReadFile(config.CACertPath); err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
	}
	if len(caCert) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
		log.Info().Msg("Loaded controller CA certificate")
	}

	// Client certificate and key for mTLS
	if len(config.ClientCertData) > 0 && len(config.ClientKeyData) > 0 {
		clientCert, err := tls.X509KeyPair(config.ClientCertData, config.ClientKeyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client certificate from memory: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
		log.Info().Msg("Loaded client certificate from in-memory data")
	} else if config.ClientCertPath != "" && config.ClientKeyPath != "" {
		clientCert, err := tls.LoadX509KeyPair(config.ClientCertPath, config.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
		log.Info().Msgf("Loaded client certificate from %s", config.ClientCertPath)
	}

	if config.InsecureSkipVerify {
		log.Warn().Msg("TLS certificate verification is disabled (insecure)")
	}

	return tlsConfig, nil
}
