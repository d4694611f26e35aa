package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wfm/internal/domain/payroll"
)

var testKey = hex.EncodeToString(bytes.Repeat([]byte{7}, 32))

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		enabled bool
		wantErr bool
	}{
		{"empty disables", "", false, false},
		{"hex", testKey, true, false},
		{"base64", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, 32)), true, false},
		{"raw", "0123456789abcdef0123456789abcde!", true, false},
		{"short", "too-short", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealer, err := NewSealer(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.enabled, sealer.Enabled())
		})
	}
}

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	plain := []byte("123;1000;10.03.2025;7,50;200,00;1500,00")
	sealed, err := sealer.Seal(plain)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "1500,00")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plain, opened)

	_, err = sealer.Open(sealed[:4])
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestLocalStorageDeliverAndOpen(t *testing.T) {
	for _, key := range []string{"", testKey} {
		sealer, err := NewSealer(key)
		require.NoError(t, err)
		dir := t.TempDir()
		storage := NewLocalStorage(dir, sealer)

		file := payroll.File{Content: []byte("a,b\n1,2\n"), Filename: "generic_20250301_20250331.csv", MimeType: "text/csv"}
		location, err := storage.Deliver(context.Background(), "run-1", file)
		require.NoError(t, err)
		require.Equal(t, "run-1/generic_20250301_20250331.csv", location)

		onDisk, err := os.ReadFile(filepath.Join(dir, "run-1", file.Filename))
		require.NoError(t, err)
		require.Equal(t, key == "", bytes.Equal(onDisk, file.Content))

		content, err := storage.Open(location)
		require.NoError(t, err)
		require.Equal(t, file.Content, content)

		entries, err := os.ReadDir(filepath.Join(dir, "run-1"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	}
}

func TestLocalStorageRejectsBadLocations(t *testing.T) {
	storage := NewLocalStorage(t.TempDir(), nil)

	_, err := storage.Deliver(context.Background(), "run-1", payroll.File{Filename: "../escape.csv"})
	require.ErrorIs(t, err, ErrInvalidLocation)

	for _, location := range []string{"", "../outside.csv", "/etc/passwd"} {
		_, err := storage.Open(location)
		require.ErrorIs(t, err, ErrInvalidLocation, location)
	}

	_, err = storage.Open("run-2/missing.csv")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStorageHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalStorage(t.TempDir(), nil).Deliver(ctx, "run-1", payroll.File{Filename: "x.csv"})
	require.ErrorIs(t, err, context.Canceled)
}
