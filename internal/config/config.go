// Package config resolves icky's transfer configuration.
//
// Configuration comes from a single optional file. YAML is the default
// format; files ending in .json or .jsonc are read as JSON with comments.
// Every key is optional. A key that is absent or holds a value of the wrong
// type falls back to its built-in default without affecting the other keys,
// and a missing or unreadable file means all defaults.
//
// Example config.yaml:
//
//	curl_verbose: false
//	client_cert: ~/.icky/client.pem
//	ca_cert: ~/.icky/ca.crt
//	server: https://localhost:7010/sticky
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ickyclip/icky/internal/observability"
	"github.com/ickyclip/icky/internal/validation"
)

const (
	DefaultDir        = "~/.icky"
	DefaultServer     = "https://localhost:7010/sticky"
	DefaultConfigFile = DefaultDir + "/config.yaml"
	DefaultCAFile     = DefaultDir + "/ca.crt"
	DefaultClientFile = DefaultDir + "/client.pem"
	DefaultVerbose    = false
	DefaultTimeout    = 30 * time.Second
	DefaultMethod     = "POST"
)

// CertType selects how the client certificate file is encoded.
type CertType string

const (
	CertPEM CertType = "PEM"
	CertP12 CertType = "P12"
)

// Config is the resolved transfer configuration. It is not modified after
// Resolve returns.
type Config struct {
	// Server is the sticky endpoint URL.
	Server string
	// ClientCert is the client certificate. For PEM it may also hold the key.
	ClientCert string
	// ClientKey is an optional separate PEM key file.
	ClientKey string
	// CACert is the CA bundle used to verify the server.
	CACert string
	// Verbose enables debug logging and request tracing.
	Verbose bool

	Timeout      time.Duration
	Method       string
	CertType     CertType
	CertPassword string
	HTTP3        bool
	MetricsFile  string

	// Source is the file the values were read from, empty for defaults.
	Source string
	// Ignored lists keys that fell back to defaults, with the reason.
	Ignored []Ignored
}

// Ignored records a config key whose value was not used.
type Ignored struct {
	Key    string
	Reason string
}

// Default returns the built-in configuration with paths not yet expanded.
func Default() *Config {
	return &Config{
		Server:     DefaultServer,
		ClientCert: DefaultClientFile,
		CACert:     DefaultCAFile,
		Verbose:    DefaultVerbose,
		Timeout:    DefaultTimeout,
		Method:     DefaultMethod,
		CertType:   CertPEM,
	}
}

// LoadFile reads path and applies every well-typed key over the defaults.
// Paths are not expanded; see Resolve.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	values, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Source = path
	cfg.apply(values)
	return cfg, nil
}

// Resolve loads path, falling back to defaults when it cannot be read, and
// expands home directories and environment variables in all paths.
// An empty path means DefaultConfigFile.
func Resolve(path string, logger *observability.Logger) *Config {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if path == "" {
		path = DefaultConfigFile
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		logger.Debugf("Unable to expand config path %s: %v", path, err)
		expanded = path
	}

	cfg, err := LoadFile(expanded)
	if err != nil {
		logger.Debugf("Unable to load configuration file: %v", err)
		cfg = Default()
	}

	for _, ig := range cfg.Ignored {
		logger.ConfigFieldIgnored(ig.Key, ig.Reason)
	}

	cfg.ClientCert = expandOrDefault(cfg.ClientCert, DefaultClientFile, "client file", logger)
	cfg.CACert = expandOrDefault(cfg.CACert, DefaultCAFile, "ca file", logger)
	if cfg.ClientKey != "" {
		cfg.ClientKey = expandOrDefault(cfg.ClientKey, "", "client key file", logger)
	}
	if cfg.MetricsFile != "" {
		cfg.MetricsFile = expandOrDefault(cfg.MetricsFile, "", "metrics file", logger)
	}

	if _, err := validation.ValidateEndpoint(cfg.Server); err != nil {
		logger.Error(err, "configured server is not usable")
	}

	logger.ConfigResolved(cfg.Source, cfg.Server, cfg.ClientCert, cfg.CACert, cfg.Verbose)
	return cfg
}

func expandOrDefault(p, fallback, what string, logger *observability.Logger) string {
	expanded, err := ExpandPath(p)
	if err != nil {
		logger.Error(err, fmt.Sprintf("Unable to expand %s", what))
		return fallback
	}
	return expanded
}

func decode(path string, data []byte) (map[string]interface{}, error) {
	values := make(map[string]interface{})

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &values); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// apply copies every recognised, well-typed value from values into c.
func (c *Config) apply(values map[string]interface{}) {
	verboseKey := "curl_verbose"
	if _, ok := values[verboseKey]; !ok {
		verboseKey = "verbose"
	}
	if v, ok := c.boolValue(values, verboseKey); ok {
		c.Verbose = v
	}
	if v, ok := c.boolValue(values, "http3"); ok {
		c.HTTP3 = v
	}

	if v, ok := c.stringValue(values, "client_cert"); ok {
		c.ClientCert = v
	}
	if v, ok := c.stringValue(values, "client_key"); ok {
		c.ClientKey = v
	}
	if v, ok := c.stringValue(values, "ca_cert"); ok {
		c.CACert = v
	}
	if v, ok := c.stringValue(values, "server"); ok {
		c.Server = v
	}
	if v, ok := c.stringValue(values, "cert_password"); ok {
		c.CertPassword = v
	}
	if v, ok := c.stringValue(values, "metrics_file"); ok {
		c.MetricsFile = v
	}

	if v, ok := c.stringValue(values, "method"); ok {
		if m, err := validation.ValidateMethod(v); err == nil {
			c.Method = m
		} else {
			c.ignore("method", err.Error())
		}
	}

	if v, ok := c.stringValue(values, "cert_type"); ok {
		switch CertType(strings.ToUpper(v)) {
		case CertPEM:
			c.CertType = CertPEM
		case CertP12, "PKCS12":
			c.CertType = CertP12
		default:
			c.ignore("cert_type", fmt.Sprintf("unknown certificate type %q", v))
		}
	}

	if raw, ok := values["timeout"]; ok {
		if d, err := parseTimeout(raw); err == nil {
			c.Timeout = d
		} else {
			c.ignore("timeout", err.Error())
		}
	}
}

func (c *Config) boolValue(values map[string]interface{}, key string) (bool, bool) {
	raw, ok := values[key]
	if !ok {
		return false, false
	}
	v, ok := raw.(bool)
	if !ok {
		c.ignore(key, fmt.Sprintf("expected boolean, got %T", raw))
	}
	return v, ok
}

func (c *Config) stringValue(values map[string]interface{}, key string) (string, bool) {
	raw, ok := values[key]
	if !ok {
		return "", false
	}
	v, ok := raw.(string)
	if !ok {
		c.ignore(key, fmt.Sprintf("expected string, got %T", raw))
	}
	return v, ok
}

func (c *Config) ignore(key, reason string) {
	c.Ignored = append(c.Ignored, Ignored{Key: key, Reason: reason})
}

// parseTimeout accepts a Go duration string or a number of seconds.
// maxTimeoutSeconds is the largest whole-second timeout a time.Duration holds.
const maxTimeoutSeconds = int64(math.MaxInt64 / time.Second)

func parseTimeout(raw interface{}) (time.Duration, error) {
	var d time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, err
		}
		d = parsed
	case int:
		if int64(v) > maxTimeoutSeconds {
			return 0, fmt.Errorf("timeout of %d seconds is too large", v)
		}
		d = time.Duration(v) * time.Second
	case float64:
		if v > float64(maxTimeoutSeconds) {
			return 0, fmt.Errorf("timeout of %g seconds is too large", v)
		}
		d = time.Duration(v * float64(time.Second))
	default:
		return 0, fmt.Errorf("expected duration, got %T", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return d, nil
}
