package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func()) (stdout string, stderr string) {
	origOut, origErr := os.Stdout, os.Stderr
	defer func() { os.Stdout, os.Stderr = origOut, origErr }()

	rOut, wOut, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")
	rErr, wErr, err := os.Pipe()
	require.NoError(t, err, "failed to create stderr pipe")

	os.Stdout, os.Stderr = wOut, wErr

	fn()

	require.NoError(t, wOut.Close())
	require.NoError(t, wErr.Close())

	outBytes, err := io.ReadAll(rOut)
	require.NoError(t, err, "failed to read stdout pipe")
	errBytes, err := io.ReadAll(rErr)
	require.NoError(t, err, "failed to read stderr pipe")

	return string(outBytes), string(errBytes)
}

// captureJSON logs with production logger and returns the single decoded entry
func captureJSON(t *testing.T, fn func(l Logger)) (map[string]any, string) {
	t.Helper()

	stdout, stderr := capture(t, func() {
		l, err := New(EnvProduction, LevelInfo)
		require.NoError(t, err)
		fn(l)
	})
	require.Empty(t, stdout, "logs go to stderr only")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(stderr), &entry), "production logs must be one JSON line. Got: %s", stderr)
	return entry, stderr
}

func Test_parseLevel(t *testing.T) {
	for level, expected := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		t.Run(level, func(t *testing.T) {
			got, err := parseLevel(level)

			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}

	for _, level := range []string{"", "verbose", "warning"} {
		t.Run("invalid "+level, func(t *testing.T) {
			_, err := parseLevel(level)

			assert.Error(t, err)
		})
	}
}

func Test_New(t *testing.T) {
	t.Run("dev is text", func(t *testing.T) {
		stdout, stderr := capture(t, func() {
			l, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			l.Info("employee logged in", "employee", "alice")
		})

		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "level=INFO")
		assert.Contains(t, stderr, `msg="employee logged in"`)
		assert.Contains(t, stderr, "employee=alice")
	})

	t.Run("production is json", func(t *testing.T) {
		entry, _ := captureJSON(t, func(l Logger) {
			l.Warn("refresh token reuse detected, family revoked", "revoked", 3)
		})

		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "refresh token reuse detected, family revoked", entry["msg"])
		assert.Equal(t, 3.0, entry["revoked"])
	})

	t.Run("source points to caller file", func(t *testing.T) {
		entry, _ := captureJSON(t, func(l Logger) {
			l.Info("janitor tick")
		})

		source, ok := entry["source"].(map[string]any)
		require.True(t, ok, "source must be added")
		assert.Equal(t, "logger_test.go", source["file"], "directory is trimmed and wrapper frames skipped")
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		assert.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(EnvDevelopment, "verbose")

		assert.Error(t, err)
	})
}

func Test_Levels(t *testing.T) {
	tests := []struct {
		level  string
		logged []string
	}{
		{LevelDebug, []string{"debug", "info", "warn", "error"}},
		{LevelInfo, []string{"info", "warn", "error"}},
		{LevelWarn, []string{"warn", "error"}},
		{LevelError, []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, stderr := capture(t, func() {
				l, err := NewTextLogger(tt.level)
				require.NoError(t, err)

				l.Debug("at debug")
				l.Info("at info")
				l.Warn("at warn")
				l.Error("at error")
			})

			lines := strings.Split(strings.TrimSpace(stderr), "\n")
			require.Len(t, lines, len(tt.logged))
			for i, level := range tt.logged {
				assert.Contains(t, lines[i], `msg="at `+level+`"`)
			}
		})
	}
}

func Test_NoOpLogger(t *testing.T) {
	stdout, stderr := capture(t, func() {
		l := NewNoOpLogger()
		l.With("component", "janitor").WithGroup("sweep").Error("sweep failed", "error", "boom")
	})

	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func Test_With(t *testing.T) {
	entry, _ := captureJSON(t, func(l Logger) {
		l.With("component", "janitor").WithGroup("sweep").Info("sweep done", "deleted", 10)
	})

	assert.Equal(t, "janitor", entry["component"])
	assert.Equal(t, map[string]any{"deleted": 10.0}, entry["sweep"])
}

func Test_Redaction(t *testing.T) {
	t.Run("credential keys", func(t *testing.T) {
		entry, stderr := captureJSON(t, func(l Logger) {
			l.Info("login request",
				"password", "hunter2",
				"token", "eyJ.token",
				"access", "eyJ.access",
				"refreshtoken", "eyJ.cookie",
				"secret", "jwt-signing-key",
				"owner", "alice",
			)
		})

		for _, key := range []string{"password", "token", "access", "refreshtoken", "secret"} {
			assert.Equal(t, redacted, entry[key], "key %q", key)
		}
		assert.Equal(t, "alice", entry["owner"], "other keys are kept")
		for _, secret := range []string{"hunter2", "eyJ", "jwt-signing-key"} {
			assert.NotContains(t, stderr, secret)
		}
	})

	t.Run("keys are case insensitive", func(t *testing.T) {
		entry, stderr := captureJSON(t, func(l Logger) {
			l.Info("request", "Authorization", "Bearer eyJ.access", "RefreshToken", "eyJ.cookie", "PASSWORD", "hunter2")
		})

		assert.Equal(t, redacted, entry["Authorization"])
		assert.Equal(t, redacted, entry["RefreshToken"])
		assert.Equal(t, redacted, entry["PASSWORD"])
		assert.NotContains(t, stderr, "eyJ")
		assert.NotContains(t, stderr, "hunter2")
	})

	t.Run("attributes bound by With and inside groups", func(t *testing.T) {
		entry, stderr := captureJSON(t, func(l Logger) {
			l.With("refresh", "eyJ.refresh").WithGroup("request").Info("refresh rotated",
				"token", "eyJ.token",
				slog.Group("employee", "name", "alice", "password", "hunter2"),
			)
		})

		assert.Equal(t, redacted, entry["refresh"])
		assert.Equal(t, map[string]any{
			"token":    redacted,
			"employee": map[string]any{"name": "alice", "password": redacted},
		}, entry["request"])
		assert.NotContains(t, stderr, "eyJ")
		assert.NotContains(t, stderr, "hunter2")
	})

	t.Run("text logger", func(t *testing.T) {
		_, stderr := capture(t, func() {
			l, err := NewTextLogger(LevelDebug)
			require.NoError(t, err)

			l.Debug("change password", "employee", "alice", "password", "hunter2")
		})

		assert.Contains(t, stderr, "password="+redacted)
		assert.Contains(t, stderr, "employee=alice")
		assert.NotContains(t, stderr, "hunter2")
	})
}
