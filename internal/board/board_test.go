package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  Type
	}{
		{"Raspberry Pi 4 Model B Rev 1.4", V3Hat},
		{"Raspberry Pi Compute Module 4 Rev 1.0", V2PCIe},
		{"MangoPi Mcore H616", V4H616},
		{"Raspberry Pi 3 Model B Plus Rev 1.3", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FromModel(tt.model), tt.model)
	}
}

func TestPackageName(t *testing.T) {
	for _, b := range []Type{V1CM4, V2PCIe, V3Hat} {
		name, err := b.PackageName()
		require.NoError(t, err)
		require.Equal(t, "blikvm-v1-v2-v3.deb", name)
	}

	name, err := V4H616.PackageName()
	require.NoError(t, err)
	require.Equal(t, "blikvm-v4.deb", name)

	_, err = Unknown.PackageName()
	require.ErrorIs(t, err, ErrUnsupportedBoard)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "V4_H616", V4H616.String())
	require.Equal(t, "Type(42)", Type(42).String())
}

func TestDetectorReadsDeviceTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.WriteFile(path, []byte("Raspberry Pi 4 Model B Rev 1.5\x00"), 0444))

	b, model, err := NewDetector(path).Detect()
	require.NoError(t, err)
	require.Equal(t, V3Hat, b)
	require.Equal(t, "Raspberry Pi 4 Model B Rev 1.5", model)
}

func TestDetectorMissingFile(t *testing.T) {
	b, _, err := NewDetector(filepath.Join(t.TempDir(), "missing")).Detect()
	require.Error(t, err)
	require.Equal(t, Unknown, b)
}
