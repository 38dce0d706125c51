package logging

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

var (
	bootNonce = randomNonce()

	// Attribute keys containing any of these are never written.
	sensitiveParts = []string{"token", "secret", "password", "passphrase", "authorization", "otp", "plaintext", "enc_key", "signing_key"}
	sensitiveExact = map[string]struct{}{
		"code": {},
		"key":  {},
		"data": {},
	}
	// Attribute keys whose values are replaced by a per-boot fingerprint.
	fingerprintKeys = map[string]struct{}{
		"email":         {},
		"contact_email": {},
		"ip":            {},
	}
)

// New returns a JSON logger that redacts secrets and fingerprints PII.
func New(w io.Writer, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(WrapHandler(h))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger for tests and optional dependencies.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, SanitizeAttr(a))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(a slog.Attr) slog.Attr {
	key := strings.TrimSpace(a.Key)
	lower := strings.ToLower(key)
	switch {
	case isSensitive(lower):
		return slog.String(key, redacted)
	case isFingerprinted(lower):
		return slog.String(key+"_fp", Fingerprint(a.Value.Resolve().String()))
	case a.Value.Kind() == slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, g := range group {
			clean = append(clean, SanitizeAttr(g))
		}
		return slog.Group(key, clean...)
	}
	return a
}

// Fingerprint is a stable-per-process, non-reversible stand-in for an identifier.
func Fingerprint(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func isSensitive(key string) bool {
	if _, ok := sensitiveExact[key]; ok {
		return true
	}
	for _, part := range sensitiveParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isFingerprinted(key string) bool {
	_, ok := fingerprintKeys[key]
	return ok
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("fallback-%p", &buf)
	}
	return hex.EncodeToString(buf)
}
