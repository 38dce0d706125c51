package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrConfiguration = errors.New("configuration error")

// Error is a fatal startup error. It matches ErrConfiguration under errors.Is
// and never carries the offending value.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Reason) }

func (e *Error) Is(target error) bool { return target == ErrConfiguration }

const (
	dataKeySize      = 32
	minSigningSecret = 32
)

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"-"`
	From     string `yaml:"from"`
	Security string `yaml:"security"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"-"`
	Role     string `yaml:"role"`
}

type Config struct {
	Addr       string        `yaml:"addr"`
	LogLevel   string        `yaml:"logLevel"`
	JWTIssuer  string        `yaml:"jwtIssuer"`
	CORSOrigin string        `yaml:"corsOrigin"`
	Mongo      MongoConfig   `yaml:"mongo"`
	SMTP       SMTPConfig    `yaml:"smtp"`
	Shutdown   time.Duration `yaml:"shutdownTimeout"`
	SeedUsers  []SeedUser    `yaml:"seedUsers"`

	// TrustedProxies lists CIDRs (or bare IPs) of reverse proxies whose
	// X-Forwarded-For header is believed. Empty means none.
	TrustedProxies []string       `yaml:"trustedProxies"`
	Proxies        []netip.Prefix `yaml:"-"`

	// Keys is populated from the environment only.
	Keys Keys `yaml:"-"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = "lifelockr"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "lifelockr"
	}
	if c.Shutdown <= 0 {
		c.Shutdown = 10 * time.Second
	}
	if c.SMTP.Security == "" {
		c.SMTP.Security = "starttls"
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and parses key material. A missing file is not an error; bad keys are.
func Load(path string) (*Config, error) {
	return LoadFrom(path, os.Getenv)
}

func LoadFrom(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &Error{Field: "file", Reason: "invalid yaml"}
			}
		}
	}
	applyEnv(cfg, getenv)
	cfg.setDefaults()

	keys, err := ParseKeys(getenv("DATA_ENC_KEY"), getenv("JWT_SECRET"))
	if err != nil {
		return nil, err
	}
	cfg.Keys = keys

	proxies, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	cfg.Proxies = proxies

	if cfg.Mongo.URI == "" {
		return nil, &Error{Field: "MONGO_URI", Reason: "missing"}
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Addr, "LIFELOCKR_ADDR")
	set(&cfg.LogLevel, "LIFELOCKR_LOG_LEVEL")
	set(&cfg.JWTIssuer, "LIFELOCKR_JWT_ISSUER")
	set(&cfg.CORSOrigin, "LIFELOCKR_CORS_ORIGIN")
	set(&cfg.Mongo.URI, "MONGO_URI")
	set(&cfg.Mongo.Database, "LIFELOCKR_MONGO_DB")
	set(&cfg.SMTP.Host, "MAIL_HOST")
	set(&cfg.SMTP.Port, "MAIL_PORT")
	set(&cfg.SMTP.User, "MAIL_USER")
	set(&cfg.SMTP.From, "MAIL_FROM")
	set(&cfg.SMTP.Security, "MAIL_SECURITY")
	if v := getenv("MAIL_PASS"); v != "" {
		cfg.SMTP.Pass = v
	}
	if v := strings.TrimSpace(getenv("LIFELOCKR_TRUSTED_PROXIES")); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(getenv("LIFELOCKR_SHUTDOWN_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown = d
		}
	}
	if email := strings.TrimSpace(getenv("LIFELOCKR_ADMIN_EMAIL")); email != "" {
		cfg.SeedUsers = append(cfg.SeedUsers, SeedUser{
			Email:    email,
			Password: getenv("LIFELOCKR_ADMIN_PASSWORD"),
			Role:     "ADMIN",
		})
	}
}

// ParseTrustedProxies accepts CIDRs and bare addresses; a bare address is a
// single-host prefix.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, &Error{Field: "trustedProxies", Reason: "invalid CIDR " + strconv.Quote(raw)}
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, &Error{Field: "trustedProxies", Reason: "invalid address " + strconv.Quote(raw)}
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Keys holds the process-wide key material. Fields are unexported so the
// value cannot be mutated after startup; accessors return copies.
type Keys struct {
	dataKey       [dataKeySize]byte
	signingSecret []byte
}

// ParseKeys validates a 64-char hex data key and a signing secret of at
// least 32 bytes.
func ParseKeys(dataKeyHex, signingSecret string) (Keys, error) {
	var k Keys
	dataKeyHex = strings.TrimSpace(dataKeyHex)
	if dataKeyHex == "" {
		return k, &Error{Field: "DATA_ENC_KEY", Reason: "missing"}
	}
	raw, err := hex.DecodeString(dataKeyHex)
	if err != nil {
		return k, &Error{Field: "DATA_ENC_KEY", Reason: "not a hex string"}
	}
	if len(raw) != dataKeySize {
		return k, &Error{Field: "DATA_ENC_KEY", Reason: "must be 64 hex characters (32 bytes)"}
	}
	copy(k.dataKey[:], raw)

	if signingSecret == "" {
		return k, &Error{Field: "JWT_SECRET", Reason: "missing"}
	}
	if len(signingSecret) < minSigningSecret {
		return k, &Error{Field: "JWT_SECRET", Reason: "must be at least 32 bytes"}
	}
	k.signingSecret = []byte(signingSecret)
	return k, nil
}

func (k Keys) DataKey() []byte {
	out := make([]byte, dataKeySize)
	copy(out, k.dataKey[:])
	return out
}

func (k Keys) SigningSecret() []byte {
	return append([]byte(nil), k.signingSecret...)
}
