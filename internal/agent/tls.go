package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/cpp11nullptr/vikki/internal/config"
)

// Security params recognised for the "ssl" type.
const (
	paramCert       = "cert"
	paramPrivateKey = "private_key"
	paramCA         = "ca"
)

// serverTLS builds the listener's TLS config. It returns nil when security is
// disabled. Setting "ca" requires clients to present a certificate signed by
// it.
func serverTLS(sec config.SecurityConfig) (*tls.Config, error) {
	if !sec.Enable {
		return nil, nil
	}
	switch strings.ToLower(sec.Type) {
	case "ssl", "tls":
	default:
		return nil, fmt.Errorf("%w: security type %q is not supported", config.ErrInvalid, sec.Type)
	}

	certFile, keyFile := sec.Params[paramCert], sec.Params[paramPrivateKey]
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("%w: security params %s and %s are required", config.ErrInvalid, paramCert, paramPrivateKey)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if caFile := sec.Params[paramCA]; caFile != "" {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file %s: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("parse CA certificate from %s: invalid PEM data", caFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}
