package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestCollectEnrollDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, data []byte) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
	write("MP-1/front.png", pngHeader)
	write("MP-1/notes.txt", []byte("not an image at all"))
	write("MP-2/a.png", pngHeader)
	write("MP-2/b.png", pngHeader)
	write("MP-3/readme.md", []byte("# nothing here"))
	write("stray.png", pngHeader)

	batch, err := collectEnrollDir(root)
	require.NoError(t, err)

	assert.Len(t, batch, 2)
	assert.Equal(t, []string{filepath.Join(root, "MP-1", "front.png")}, batch["MP-1"])
	assert.Len(t, batch["MP-2"], 2)
	assert.NotContains(t, batch, "MP-3")
}

func TestCollectEnrollDir_Missing(t *testing.T) {
	_, err := collectEnrollDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestParseEmail(t *testing.T) {
	addr, err := parseEmail("handler", "  Officer <officer@police.example> ", true)
	require.NoError(t, err)
	assert.Equal(t, "officer@police.example", addr)

	_, err = parseEmail("handler", "", true)
	assert.ErrorContains(t, err, "--handler is required")

	addr, err = parseEmail("contact", "", false)
	require.NoError(t, err)
	assert.Empty(t, addr)

	_, err = parseEmail("contact", "not-an-address", false)
	assert.Error(t, err)
}

func TestOptionalPoint(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "x"}
		c.Flags().Float64("lat", 0, "")
		c.Flags().Float64("lon", 0, "")
		require.NoError(t, c.Flags().Parse(args))
		return c
	}

	p, err := optionalPoint(newCmd())
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = optionalPoint(newCmd("--lat", "50.08", "--lon", "14.42"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 50.08, p.Lat, 1e-9)
	assert.InDelta(t, 14.42, p.Lon, 1e-9)

	_, err = optionalPoint(newCmd("--lat", "50.08"))
	assert.Error(t, err)

	_, err = optionalPoint(newCmd("--lat", "91", "--lon", "0"))
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h10m", formatDuration(2*time.Hour+10*time.Minute))
}

func TestFormatLocation(t *testing.T) {
	assert.Equal(t, "Location unavailable", formatLocation(nil))
}
