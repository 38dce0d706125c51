package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testDataKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testSecret  = "0123456789abcdef0123456789abcdef"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATA_ENC_KEY": testDataKey,
		"JWT_SECRET":   testSecret,
		"MONGO_URI":    "mongodb://localhost:27017",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("", env(baseEnv()))
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.Addr)
	require.Equal(t, "lifelockr", cfg.JWTIssuer)
	require.Equal(t, "lifelockr", cfg.Mongo.Database)
	require.Equal(t, 10*time.Second, cfg.Shutdown)
	require.Len(t, cfg.Keys.DataKey(), 32)
	require.Equal(t, []byte(testSecret), cfg.Keys.SigningSecret())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := strings.Join([]string{
		"addr: \":9000\"",
		"jwtIssuer: file-issuer",
		"shutdownTimeout: 3s",
		"mongo:",
		"  uri: mongodb://file:27017",
		"  database: filedb",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	e := baseEnv()
	e["LIFELOCKR_JWT_ISSUER"] = "env-issuer"
	cfg, err := LoadFrom(path, env(e))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, "env-issuer", cfg.JWTIssuer)
	require.Equal(t, "filedb", cfg.Mongo.Database)
	require.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	require.Equal(t, 3*time.Second, cfg.Shutdown)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"), env(baseEnv()))
	require.NoError(t, err)
}

func TestKeyValidation(t *testing.T) {
	cases := map[string]struct {
		key, secret, field string
	}{
		"missing data key": {"", testSecret, "DATA_ENC_KEY"},
		"non-hex data key": {strings.Repeat("zz", 32), testSecret, "DATA_ENC_KEY"},
		"short data key":   {testDataKey[:62], testSecret, "DATA_ENC_KEY"},
		"long data key":    {testDataKey + "00", testSecret, "DATA_ENC_KEY"},
		"missing secret":   {testDataKey, "", "JWT_SECRET"},
		"short secret":     {testDataKey, "too-short", "JWT_SECRET"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := baseEnv()
			e["DATA_ENC_KEY"] = tc.key
			e["JWT_SECRET"] = tc.secret
			_, err := LoadFrom("", env(e))
			require.ErrorIs(t, err, ErrConfiguration)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			require.Equal(t, tc.field, ce.Field)
			if tc.key != "" {
				require.NotContains(t, err.Error(), tc.key)
			}
		})
	}
}

func TestMissingMongoURI(t *testing.T) {
	e := baseEnv()
	delete(e, "MONGO_URI")
	_, err := LoadFrom("", env(e))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestKeysAccessorsReturnCopies(t *testing.T) {
	k, err := ParseKeys(testDataKey, testSecret)
	require.NoError(t, err)
	dk := k.DataKey()
	dk[0] ^= 0xff
	require.NotEqual(t, dk, k.DataKey())

	ss := k.SigningSecret()
	ss[0] = 'X'
	require.Equal(t, []byte(testSecret), k.SigningSecret())
}

func TestAdminSeedFromEnv(t *testing.T) {
	e := baseEnv()
	e["LIFELOCKR_ADMIN_EMAIL"] = "admin@example.com"
	e["LIFELOCKR_ADMIN_PASSWORD"] = "Adm1n!password"
	cfg, err := LoadFrom("", env(e))
	require.NoError(t, err)
	require.Len(t, cfg.SeedUsers, 1)
	require.Equal(t, "ADMIN", cfg.SeedUsers[0].Role)
}

func TestTrustedProxies(t *testing.T) {
	cfg, err := LoadFrom("", env(baseEnv()))
	require.NoError(t, err)
	require.Empty(t, cfg.Proxies)

	e := baseEnv()
	e["LIFELOCKR_TRUSTED_PROXIES"] = "10.0.0.0/8, 192.0.2.1"
	cfg, err = LoadFrom("", env(e))
	require.NoError(t, err)
	require.Len(t, cfg.Proxies, 2)
	require.Equal(t, "10.0.0.0/8", cfg.Proxies[0].String())
	require.Equal(t, "192.0.2.1/32", cfg.Proxies[1].String())

	e["LIFELOCKR_TRUSTED_PROXIES"] = "10.0.0.0/33"
	_, err = LoadFrom("", env(e))
	require.ErrorIs(t, err, ErrConfiguration)

	e["LIFELOCKR_TRUSTED_PROXIES"] = "proxy.local"
	_, err = LoadFrom("", env(e))
	require.ErrorIs(t, err, ErrConfiguration)
}
