package tlsutil

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// ErrNoCertificates is returned when a PEM input holds no certificates.
var ErrNoCertificates = errors.New("no certificates found")

// ClientOptions names the client's TLS material.
type ClientOptions struct {
	// CertFile is the client certificate. For PEM it may also hold the private key.
	CertFile string
	// KeyFile is an optional separate PEM private key.
	KeyFile string
	// CertType is "PEM" (default) or "P12".
	CertType string
	// Password decrypts a P12 bundle.
	Password string
	// CAFile verifies the server. Empty means the system roots.
	CAFile string
}

// LoadClientConfig builds a client tls.Config that presents the client
// certificate and trusts only CAFile.
func LoadClientConfig(opts ClientOptions) (*tls.Config, error) {
	cert, err := LoadClientCertificate(opts)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.CAFile != "" {
		pool, err := LoadCertPool(opts.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// LoadClientCertificate reads the client certificate and key.
func LoadClientCertificate(opts ClientOptions) (tls.Certificate, error) {
	data, err := os.ReadFile(opts.CertFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read client certificate: %w", err)
	}

	switch strings.ToUpper(opts.CertType) {
	case "", "PEM":
		keyData := data
		if opts.KeyFile != "" {
			keyData, err = os.ReadFile(opts.KeyFile)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("failed to read client key: %w", err)
			}
		}
		cert, err := tls.X509KeyPair(data, keyData)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load PEM client certificate %s: %w", opts.CertFile, err)
		}
		return cert, nil

	case "P12", "PKCS12":
		key, leaf, err := pkcs12.Decode(data, opts.Password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load P12 client certificate %s: %w", opts.CertFile, err)
		}
		return tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}, nil
	}

	return tls.Certificate{}, fmt.Errorf("unsupported certificate type %q", opts.CertType)
}

// LoadCertPool reads a PEM CA bundle.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w in CA bundle %s", ErrNoCertificates, path)
	}
	return pool, nil
}

// NewServerConfig builds a server configuration from PEM material. When
// caPEM is non-empty, clients must present a certificate signed by it.
func NewServerConfig(certPEM, keyPEM, caPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w in client CA", ErrNoCertificates)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// LoadServerConfig is NewServerConfig reading from files. An empty caFile
// disables client authentication.
func LoadServerConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read server certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read server key: %w", err)
	}
	var caPEM []byte
	if caFile != "" {
		caPEM, err = os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}
	}
	return NewServerConfig(certPEM, keyPEM, caPEM)
}

// ReadCertificates parses every certificate in a PEM file.
func ReadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate in %s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCertificates, path)
	}
	return certs, nil
}

// Fingerprint returns the SHA-256 fingerprint of cert, colon separated.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return "SHA256:" + strings.Join(parts, ":")
}
