// Package checkpoint persists chunk summaries between runs, so an
// interrupted or failed summarization resumes where it stopped instead of
// paying for every chunk again.
package checkpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// DefaultSaveEvery is how many recorded summaries trigger a write
const DefaultSaveEvery = 50

// The file is zstd-compressed CBOR. Encoder and decoder are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// state is the on-disk format
type state struct {
	Digest    string         `cbor:"digest"`
	Model     string         `cbor:"model"`
	Chunks    int            `cbor:"chunks"`
	Summaries map[int]string `cbor:"summaries"` // Track which chunks are done
}

// File is a checkpoint stored at a path. It is safe for concurrent use.
type File struct {
	path      string
	saveEvery int

	mu      sync.Mutex
	st      *state
	pending int
}

// Open returns a checkpoint backed by path. Nothing is read until Begin.
func Open(path string) *File {
	return &File{path: path, saveEvery: DefaultSaveEvery}
}

// Path returns the checkpoint file path
func (f *File) Path() string {
	return f.path
}

// Digest identifies a sequence of chunk contents.
func Digest(contents []string) string {
	h := blake3.New()
	var sep = []byte{0}
	for _, c := range contents {
		_, _ = h.Write([]byte(c))
		_, _ = h.Write(sep)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin starts tracking a run over contents with model. Summaries saved by
// an earlier run over the same contents and model are returned; a
// checkpoint for anything else is discarded.
func (f *File) Begin(contents []string, model string) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	digest := Digest(contents)
	f.st = &state{Digest: digest, Model: model, Chunks: len(contents), Summaries: map[int]string{}}
	f.pending = 0

	prev, err := load(f.path)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Digest != digest || prev.Model != model || prev.Chunks != len(contents) {
		return nil, nil
	}

	done := make(map[int]string, len(prev.Summaries))
	for i, s := range prev.Summaries {
		f.st.Summaries[i] = s
		done[i] = s
	}
	return done, nil
}

// Record stores one summary and writes the checkpoint every saveEvery records.
func (f *File) Record(index int, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.st == nil {
		return errors.New("checkpoint: Record before Begin")
	}
	f.st.Summaries[index] = summary
	f.pending++
	if f.pending < f.saveEvery {
		return nil
	}
	f.pending = 0
	return save(f.path, f.st)
}

// Save writes the checkpoint now.
func (f *File) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.st == nil || len(f.st.Summaries) == 0 {
		return nil
	}
	f.pending = 0
	return save(f.path, f.st)
}

// Remove deletes the checkpoint file; a missing file is not an error.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func load(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No checkpoint exists
		}
		return nil, err
	}

	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing checkpoint %s: %w", path, err)
	}

	var st state
	if err := cbor.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return &st, nil
}

func save(path string, st *state) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	raw, err := cbor.Marshal(st)
	if err != nil {
		return err
	}
	data := zstdEncoder.EncodeAll(raw, nil)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmp, path)
}
