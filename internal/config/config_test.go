package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://localhost:7010/sticky", cfg.Server)
	assert.Equal(t, "~/.icky/client.pem", cfg.ClientCert)
	assert.Equal(t, "~/.icky/ca.crt", cfg.CACert)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "POST", cfg.Method)
	assert.Equal(t, CertPEM, cfg.CertType)
}

func TestResolve_ServerOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, "config.yaml", `server: "https://example.test/sticky"`+"\n")
	cfg := Resolve(path, nil)

	assert.Equal(t, "https://example.test/sticky", cfg.Server)
	assert.Equal(t, filepath.Join(home, ".icky", "client.pem"), cfg.ClientCert)
	assert.Equal(t, filepath.Join(home, ".icky", "ca.crt"), cfg.CACert)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, path, cfg.Source)
	assert.Empty(t, cfg.Ignored)
}

func TestResolve_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Resolve(filepath.Join(home, "does-not-exist.yaml"), nil)

	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, filepath.Join(home, ".icky", "client.pem"), cfg.ClientCert)
	assert.Empty(t, cfg.Source)
}

func TestResolve_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".icky"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".icky", "config.yaml"),
		[]byte("curl_verbose: true\n"), 0600))

	cfg := Resolve("", nil)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, filepath.Join(home, ".icky", "config.yaml"), cfg.Source)
}

func TestResolve_UnparseableFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "server: [unterminated\n")
	cfg := Resolve(path, nil)

	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Empty(t, cfg.Source)
}

func TestLoadFile_AllFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
curl_verbose: true
client_cert: /etc/icky/client.p12
client_key: /etc/icky/client.key
ca_cert: /etc/icky/ca.crt
server: https://sticky.internal/clip
timeout: 5s
method: put
cert_type: p12
cert_password: hunter2
http3: true
metrics_file: /var/lib/node_exporter/icky.prom
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, "/etc/icky/client.p12", cfg.ClientCert)
	assert.Equal(t, "/etc/icky/client.key", cfg.ClientKey)
	assert.Equal(t, "/etc/icky/ca.crt", cfg.CACert)
	assert.Equal(t, "https://sticky.internal/clip", cfg.Server)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "PUT", cfg.Method)
	assert.Equal(t, CertP12, cfg.CertType)
	assert.Equal(t, "hunter2", cfg.CertPassword)
	assert.True(t, cfg.HTTP3)
	assert.Equal(t, "/var/lib/node_exporter/icky.prom", cfg.MetricsFile)
	assert.Empty(t, cfg.Ignored)
}

func TestLoadFile_WrongTypesFallBackPerField(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
curl_verbose: "yes"
client_cert: 42
ca_cert: [a, b]
server: https://example.test/sticky
timeout: soon
method: DELETE
cert_type: DER
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.False(t, cfg.Verbose)
	assert.Equal(t, DefaultClientFile, cfg.ClientCert)
	assert.Equal(t, DefaultCAFile, cfg.CACert)
	assert.Equal(t, "https://example.test/sticky", cfg.Server)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMethod, cfg.Method)
	assert.Equal(t, CertPEM, cfg.CertType)

	keys := make([]string, 0, len(cfg.Ignored))
	for _, ig := range cfg.Ignored {
		keys = append(keys, ig.Key)
	}
	assert.ElementsMatch(t, []string{"curl_verbose", "client_cert", "ca_cert", "timeout", "method", "cert_type"}, keys)
}

func TestLoadFile_VerboseAlias(t *testing.T) {
	path := writeConfig(t, "config.yaml", "verbose: true\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
}

func TestLoadFile_TimeoutSeconds(t *testing.T) {
	path := writeConfig(t, "config.yaml", "timeout: 12\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Timeout)

	path = writeConfig(t, "config.yaml", "timeout: -3\n")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestLoadFile_TimeoutOverflow(t *testing.T) {
	for _, raw := range []string{"9223372037", "9223372036854775807", "1.0e12"} {
		t.Run(raw, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", "timeout: "+raw+"\n")
			cfg, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, cfg.Timeout)
			require.Len(t, cfg.Ignored, 1)
			assert.Equal(t, "timeout", cfg.Ignored[0].Key)
		})
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{
	// pushed clipboard goes here
	"server": "https://example.test/sticky",
	"curl_verbose": true, /* trace requests */
	"timeout": 2.5,
}`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/sticky", cfg.Server)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, DefaultClientFile, cfg.ClientCert)
}

func TestLoadFile_EmptyFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, path, cfg.Source)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve_ExpandsPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ICKY_CERTS", "/srv/certs")

	path := writeConfig(t, "config.yaml", `
client_cert: $ICKY_CERTS/client.pem
ca_cert: ${ICKY_CA_DIR:-~/ca}/ca.crt
metrics_file: ~/metrics/icky.prom
`)
	cfg := Resolve(path, nil)

	assert.Equal(t, "/srv/certs/client.pem", cfg.ClientCert)
	assert.Equal(t, filepath.Join(home, "ca", "ca.crt"), cfg.CACert)
	assert.Equal(t, filepath.Join(home, "metrics", "icky.prom"), cfg.MetricsFile)
}

func TestResolve_ExpansionFailureFallsBack(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, "config.yaml", "client_cert: ~no-such-user-icky-test/client.pem\n")
	cfg := Resolve(path, nil)

	assert.Equal(t, DefaultClientFile, cfg.ClientCert)
}
