// Package tlsutil loads mutual-TLS material for icky and generates
// development certificate authorities.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names written by PKI.WriteFiles.
const (
	CAFile         = "ca.crt"
	CAKeyFile      = "ca.key"
	ClientFile     = "client.pem"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
)

// ErrExists is returned by WriteFiles when output files exist and force is not set.
var ErrExists = errors.New("certificate files already exist")

// PKI is a development CA with one server and one client certificate.
// All fields are PEM encoded.
type PKI struct {
	CACert     []byte
	CAKey      []byte
	ServerCert []byte
	ServerKey  []byte
	ClientCert []byte
	ClientKey  []byte
}

// GenerateOptions controls GeneratePKI.
type GenerateOptions struct {
	// Hosts are the DNS names and IP addresses the server certificate is valid for.
	Hosts []string
	// ClientName is the client certificate's common name.
	ClientName string
	// ValidFor is the lifetime of every certificate.
	ValidFor time.Duration
}

// GeneratePKI generates a CA and a server and client certificate signed by it.
//
// The material is suitable for local development and testing. Keys are
// ECDSA P-256.
func GeneratePKI(opts GenerateOptions) (*PKI, error) {
	if len(opts.Hosts) == 0 {
		opts.Hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	if opts.ClientName == "" {
		opts.ClientName = "icky"
	}
	if opts.ValidFor <= 0 {
		opts.ValidFor = 365 * 24 * time.Hour
	}

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	caTemplate, err := newTemplate(pkix.Name{CommonName: "icky development CA", Organization: []string{"icky"}}, opts.ValidFor)
	if err != nil {
		return nil, err
	}
	caTemplate.IsCA = true
	caTemplate.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	serverCert, serverKey, err := issue(caCert, caKey, pkix.Name{CommonName: opts.Hosts[0]}, opts.ValidFor, func(t *x509.Certificate) {
		t.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		for _, h := range opts.Hosts {
			if ip := net.ParseIP(h); ip != nil {
				t.IPAddresses = append(t.IPAddresses, ip)
			} else {
				t.DNSNames = append(t.DNSNames, h)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue server certificate: %w", err)
	}

	clientCert, clientKey, err := issue(caCert, caKey, pkix.Name{CommonName: opts.ClientName}, opts.ValidFor, func(t *x509.Certificate) {
		t.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue client certificate: %w", err)
	}

	caKeyPEM, err := encodeKey(caKey)
	if err != nil {
		return nil, err
	}

	return &PKI{
		CACert:     encodeCert(caDER),
		CAKey:      caKeyPEM,
		ServerCert: serverCert,
		ServerKey:  serverKey,
		ClientCert: clientCert,
		ClientKey:  clientKey,
	}, nil
}

// ClientPEM returns the client certificate followed by its key, the single
// file layout icky reads by default.
func (p *PKI) ClientPEM() []byte {
	out := make([]byte, 0, len(p.ClientCert)+len(p.ClientKey))
	out = append(out, p.ClientCert...)
	return append(out, p.ClientKey...)
}

// ServerTLSConfig returns a server configuration that requires client
// certificates signed by the CA.
func (p *PKI) ServerTLSConfig() (*tls.Config, error) {
	return NewServerConfig(p.ServerCert, p.ServerKey, p.CACert)
}

// WriteFiles writes the PKI into dir, creating it with mode 0700.
// Private key material is written with mode 0600.
func (p *PKI) WriteFiles(dir string, force bool) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CAFile, p.CACert, 0644},
		{CAKeyFile, p.CAKey, 0600},
		{ClientFile, p.ClientPEM(), 0600},
		{ServerCertFile, p.ServerCert, 0644},
		{ServerKeyFile, p.ServerKey, 0600},
	}

	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%w: %s", ErrExists, path)
			}
		}
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func newTemplate(subject pkix.Name, validFor time.Duration) (*x509.Certificate, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}, nil
}

func issue(ca *x509.Certificate, caKey *ecdsa.PrivateKey, subject pkix.Name, validFor time.Duration, customize func(*x509.Certificate)) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	template, err := newTemplate(subject, validFor)
	if err != nil {
		return nil, nil, err
	}
	customize(template)

	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyPEM, err = encodeKey(key)
	if err != nil {
		return nil, nil, err
	}
	return encodeCert(der), keyPEM, nil
}

func encodeCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	})
}

func encodeKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}
