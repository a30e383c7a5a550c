package tlsutil

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKI_WriteAndLoad(t *testing.T) {
	pki, err := GeneratePKI(GenerateOptions{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "icky")
	require.NoError(t, pki.WriteFiles(dir, false))

	info, err := os.Stat(filepath.Join(dir, ClientFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := LoadClientConfig(ClientOptions{
		CertFile: filepath.Join(dir, ClientFile),
		CAFile:   filepath.Join(dir, CAFile),
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)

	_, err = LoadServerConfig(filepath.Join(dir, ServerCertFile), filepath.Join(dir, ServerKeyFile), filepath.Join(dir, CAFile))
	require.NoError(t, err)
}

func TestWriteFiles_RefusesOverwrite(t *testing.T) {
	pki, err := GeneratePKI(GenerateOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, pki.WriteFiles(dir, false))

	err = pki.WriteFiles(dir, false)
	assert.True(t, errors.Is(err, ErrExists))

	require.NoError(t, pki.WriteFiles(dir, true))
}

func TestLoadClientCertificate_SeparateKey(t *testing.T) {
	pki, err := GeneratePKI(GenerateOptions{ClientName: "alice"})
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.key")
	require.NoError(t, os.WriteFile(certFile, pki.ClientCert, 0600))
	require.NoError(t, os.WriteFile(keyFile, pki.ClientKey, 0600))

	_, err = LoadClientCertificate(ClientOptions{CertFile: certFile})
	require.Error(t, err, "certificate without key must fail")

	cert, err := LoadClientCertificate(ClientOptions{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	assert.Len(t, cert.Certificate, 1)
}

func TestLoadClientCertificate_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadClientCertificate(ClientOptions{CertFile: filepath.Join(dir, "missing.pem")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0600))

	_, err = LoadClientCertificate(ClientOptions{CertFile: garbage})
	assert.Error(t, err)

	_, err = LoadClientCertificate(ClientOptions{CertFile: garbage, CertType: "P12"})
	assert.Error(t, err)

	_, err = LoadClientCertificate(ClientOptions{CertFile: garbage, CertType: "DER"})
	assert.ErrorContains(t, err, "unsupported certificate type")
}

func TestLoadCertPool_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing here\n"), 0644))

	_, err := LoadCertPool(path)
	assert.ErrorIs(t, err, ErrNoCertificates)
}

func TestReadCertificates_AndFingerprint(t *testing.T) {
	pki, err := GeneratePKI(GenerateOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, pki.WriteFiles(dir, false))

	certs, err := ReadCertificates(filepath.Join(dir, ClientFile))
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "icky", certs[0].Subject.CommonName)

	fp := Fingerprint(certs[0])
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))
	assert.Len(t, strings.Split(strings.TrimPrefix(fp, "SHA256:"), ":"), 32)
}

func TestMutualTLSHandshake(t *testing.T) {
	pki, err := GeneratePKI(GenerateOptions{})
	require.NoError(t, err)

	serverCfg, err := pki.ServerTLSConfig()
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_ = c.(*tls.Conn).Handshake()
				_, _ = io.WriteString(c, "ok")
			}(conn)
		}
	}()

	dir := t.TempDir()
	require.NoError(t, pki.WriteFiles(dir, false))
	clientCfg, err := LoadClientConfig(ClientOptions{
		CertFile: filepath.Join(dir, ClientFile),
		CAFile:   filepath.Join(dir, CAFile),
	})
	require.NoError(t, err)
	clientCfg.ServerName = "localhost"

	conn, err := tls.Dial("tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
	conn.Close()

	// Without a client certificate the server rejects the handshake.
	anon := &tls.Config{RootCAs: clientCfg.RootCAs, ServerName: "localhost"}
	conn, err = tls.Dial("tcp", ln.Addr().String(), anon)
	if err == nil {
		_, err = io.ReadFull(conn, buf)
		conn.Close()
	}
	assert.Error(t, err)
}
