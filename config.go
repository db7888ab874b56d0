package syscoinda

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// Config configures a SyscoinClient.
type Config struct {
	// RPCURL is the node's JSON-RPC endpoint. Credentials embedded in the URL
	// take precedence over User and Password.
	RPCURL   string `koanf:"rpc-url"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	// BlobExplorerURL is the base URL of a blob explorer. Informational only.
	BlobExplorerURL   string `koanf:"blob-explorer-url"`
	CreateBlobMethod  string `koanf:"create-blob-method"`
	GetBlobDataMethod string `koanf:"get-blob-data-method"`
	// RequestTimeout bounds each HTTP round trip. Zero disables the timeout.
	RequestTimeout time.Duration `koanf:"request-timeout"`
}

// DefaultConfig returns the configuration of a node reachable as "l1" inside
// a local devnet.
func DefaultConfig() Config {
	return Config{
		RPCURL:            "http://l1:8370",
		User:              "u",
		Password:          "p",
		BlobExplorerURL:   "http://poda.tanenbaum.io/vh/",
		CreateBlobMethod:  MethodCreateBlob,
		GetBlobDataMethod: MethodGetBlobData,
		RequestTimeout:    30 * time.Second,
	}
}

// ConfigAddOptions adds configuration flags to f. With an empty prefix the
// flags are named after the koanf keys, e.g. "rpc-url".
func ConfigAddOptions(prefix string, f *pflag.FlagSet) {
	def := DefaultConfig()
	name := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}
	f.String(name("rpc-url"), def.RPCURL, "JSON-RPC endpoint of the Syscoin node")
	f.String(name("user"), def.User, "basic auth user for the Syscoin node")
	f.String(name("password"), def.Password, "basic auth password for the Syscoin node")
	f.String(name("blob-explorer-url"), def.BlobExplorerURL, "base URL of a blob explorer (informational)")
	f.String(name("create-blob-method"), def.CreateBlobMethod, "RPC method used to submit blobs")
	f.String(name("get-blob-data-method"), def.GetBlobDataMethod, "RPC method used to fetch blob data")
	f.Duration(name("request-timeout"), def.RequestTimeout, "timeout for each RPC round trip (0 disables)")
}

// LoadFromKoanf overlays the keys present under prefix in k onto c.
func (c *Config) LoadFromKoanf(k *koanf.Koanf, prefix string) error {
	if err := k.Unmarshal(prefix, c); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}
	return nil
}

// LoadConfigFromKoanf loads a validated configuration from the keys under
// prefix in k, starting from DefaultConfig.
func LoadConfigFromKoanf(k *koanf.Koanf, prefix string) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromKoanf(k, prefix); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

// fileConfig is the TOML file layout. Durations are strings, e.g. "30s".
type fileConfig struct {
	RPCURL            string `toml:"rpc_url"`
	User              string `toml:"user"`
	Password          string `toml:"password"`
	BlobExplorerURL   string `toml:"blob_explorer_url"`
	CreateBlobMethod  string `toml:"create_blob_method"`
	GetBlobDataMethod string `toml:"get_blob_data_method"`
	RequestTimeout    string `toml:"request_timeout"`
}

// LoadConfig loads configuration from a TOML file. Keys absent from the file
// keep their DefaultConfig values. ${VAR} and $VAR references are replaced by
// the environment variable's value when it is set.
func LoadConfig(path string) (Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.Wrap(err, "failed to get home dir")
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	def := DefaultConfig()
	fc := fileConfig{
		RPCURL:            def.RPCURL,
		User:              def.User,
		Password:          def.Password,
		BlobExplorerURL:   def.BlobExplorerURL,
		CreateBlobMethod:  def.CreateBlobMethod,
		GetBlobDataMethod: def.GetBlobDataMethod,
		RequestTimeout:    def.RequestTimeout.String(),
	}
	if err := toml.Unmarshal([]byte(expandEnvVars(string(data))), &fc); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config file")
	}

	timeout, err := time.ParseDuration(fc.RequestTimeout)
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid request_timeout duration")
	}
	cfg := Config{
		RPCURL:            fc.RPCURL,
		User:              fc.User,
		Password:          fc.Password,
		BlobExplorerURL:   fc.BlobExplorerURL,
		CreateBlobMethod:  fc.CreateBlobMethod,
		GetBlobDataMethod: fc.GetBlobDataMethod,
		RequestTimeout:    timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	bareEnvVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars replaces ${VAR} or $VAR with environment variable values.
// References to unset variables are left as they are.
func expandEnvVars(content string) string {
	content = bracedEnvVar.ReplaceAllStringFunc(content, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
	return bareEnvVar.ReplaceAllStringFunc(content, func(match string) string {
		if val := os.Getenv(match[1:]); val != "" {
			return val
		}
		return match
	})
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if _, err := ParseEndpoint(c.RPCURL); err != nil {
		return errors.Wrap(err, "rpc-url")
	}
	if c.CreateBlobMethod == "" {
		return errors.New("create-blob-method is required")
	}
	if c.GetBlobDataMethod == "" {
		return errors.New("get-blob-data-method is required")
	}
	if c.RequestTimeout < 0 {
		return errors.Newf("request-timeout must be non-negative, got %s", c.RequestTimeout)
	}
	return nil
}

// PrintConfig renders the configuration with secrets masked.
func (c *Config) PrintConfig() string {
	var sb strings.Builder
	sb.WriteString("=== Configuration ===\n")
	fmt.Fprintf(&sb, "  rpc_url = %q\n", redactURL(c.RPCURL))
	fmt.Fprintf(&sb, "  user = %q\n", c.User)
	fmt.Fprintf(&sb, "  password = %q\n", maskSecret(c.Password))
	fmt.Fprintf(&sb, "  blob_explorer_url = %q\n", c.BlobExplorerURL)
	fmt.Fprintf(&sb, "  create_blob_method = %q\n", c.CreateBlobMethod)
	fmt.Fprintf(&sb, "  get_blob_data_method = %q\n", c.GetBlobDataMethod)
	fmt.Fprintf(&sb, "  request_timeout = %q\n", c.RequestTimeout.String())
	sb.WriteString("=====================\n")
	return sb.String()
}

// maskSecret masks a secret string, showing only first and last 4 chars.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// redactURL strips embedded credentials from an endpoint for display.
func redactURL(raw string) string {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return "<invalid>"
	}
	return ep.URL
}
