package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	return payload
}

func TestRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	logger.Info("login",
		"code", "123456",
		"session_token", "eyJ...",
		"otp_hash", "abcd",
		"jwt_secret", "s3cr3t",
		"user_id", "u-1",
	)
	p := decode(t, &buf)
	require.Equal(t, redacted, p["code"])
	require.Equal(t, redacted, p["session_token"])
	require.Equal(t, redacted, p["otp_hash"])
	require.Equal(t, redacted, p["jwt_secret"])
	require.Equal(t, "u-1", p["user_id"])
	require.NotContains(t, buf.String(), "123456")
}

func TestFingerprintsEmail(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	logger.Warn("contact lookup", "contact_email", "Contact@Example.com")
	p := decode(t, &buf)
	_, plain := p["contact_email"]
	require.False(t, plain)
	fp, _ := p["contact_email_fp"].(string)
	require.True(t, strings.HasPrefix(fp, "fp_"))
	require.Equal(t, Fingerprint("contact@example.com"), fp)
	require.NotContains(t, buf.String(), "Example.com")
}

func TestWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).With("password", "hunter2")
	logger.Info("x", slog.Group("req", slog.String("authorization", "Bearer abc"), slog.String("path", "/api")))
	require.NotContains(t, buf.String(), "hunter2")
	require.NotContains(t, buf.String(), "Bearer abc")
	require.Contains(t, buf.String(), "/api")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
