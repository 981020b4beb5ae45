package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles locates client-side TLS material. CAFile is required; CertFile and
// KeyFile are only needed when the agent verifies client certificates.
type TLSFiles struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
}

// LoadTLS builds a client TLS config trusting only files.CAFile.
func LoadTLS(files TLSFiles) (*tls.Config, error) {
	caPEM, err := os.ReadFile(files.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file %s: %w", files.CAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse CA certificate from %s: invalid PEM data", files.CAFile)
	}

	cfg := &tls.Config{
		RootCAs:    pool,
		ServerName: files.ServerName,
		MinVersion: tls.VersionTLS12,
	}
	if files.CertFile != "" || files.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
