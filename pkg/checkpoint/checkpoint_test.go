package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "run.cbor")
	contents := []string{"one", "two", "three"}

	f := Open(path)
	done, err := f.Begin(contents, "model-a")
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, f.Record(0, "s0"))
	require.NoError(t, f.Record(2, "s2"))
	require.NoError(t, f.Save())
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")

	again := Open(path)
	done, err = again.Begin(contents, "model-a")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "s0", 2: "s2"}, done)

	require.NoError(t, again.Remove())
	assert.NoFileExists(t, path)
	require.NoError(t, again.Remove())
}

func TestFile_Mismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")

	f := Open(path)
	_, err := f.Begin([]string{"a", "b"}, "m")
	require.NoError(t, err)
	require.NoError(t, f.Record(0, "sa"))
	require.NoError(t, f.Save())

	tests := []struct {
		name     string
		contents []string
		model    string
	}{
		{"other model", []string{"a", "b"}, "n"},
		{"other contents", []string{"a", "c"}, "m"},
		{"more chunks", []string{"a", "b", "c"}, "m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := Open(path).Begin(tt.contents, tt.model)
			require.NoError(t, err)
			assert.Empty(t, done)
		})
	}
}

func TestFile_SavesPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")
	f := Open(path)
	f.saveEvery = 2

	_, err := f.Begin([]string{"a", "b", "c"}, "m")
	require.NoError(t, err)

	require.NoError(t, f.Record(0, "x"))
	assert.NoFileExists(t, path)
	require.NoError(t, f.Record(1, "y"))
	assert.FileExists(t, path)
}

func TestFile_RecordBeforeBegin(t *testing.T) {
	assert.Error(t, Open(filepath.Join(t.TempDir(), "x")).Record(0, "s"))
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o644))

	_, err := Open(path).Begin([]string{"a"}, "m")
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, Digest([]string{"a", "b"}), Digest([]string{"a", "b"}))
	assert.NotEqual(t, Digest([]string{"ab"}), Digest([]string{"a", "b"}))
	assert.Len(t, Digest(nil), 64)
}
