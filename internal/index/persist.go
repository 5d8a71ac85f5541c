package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/schemarag/internal/embedding"
	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/internal/vector"
)

const (
	vectorsFile     = "vectors.bin"
	manifestFile    = "manifest.json"
	manifestVersion = 1
)

// manifest is the table-name binding stored next to the vectors.
type manifest struct {
	Version    int                      `json:"version"`
	Model      string                   `json:"model"`
	Dimensions int                      `json:"dimensions"`
	Metric     vector.Metric            `json:"metric"`
	Documents  []models.SummaryDocument `json:"documents"`
}

// Save writes the index under dir (created if needed) as vectors.bin and manifest.json.
// Each file is written to a temporary name and renamed into place.
func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	err := writeAtomic(filepath.Join(dir, vectorsFile), func(f *os.File) error {
		_, err := ix.vectors.WriteTo(f)
		return err
	})
	if err != nil {
		return err
	}
	m := manifest{
		Version:    manifestVersion,
		Model:      ix.model,
		Dimensions: ix.vectors.Dimensions(),
		Metric:     ix.vectors.Metric(),
		Documents:  ix.docs,
	}
	return writeAtomic(filepath.Join(dir, manifestFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load restores an index saved under dir. emb must be the same model (identity and
// dimension) the index was built with. The vectors header is checked against the
// manifest and the file size before any vector is read. Every failure wraps ErrLoad.
func Load(dir string, emb embedding.Embedder) (*Index, error) {
	if emb == nil {
		return nil, fmt.Errorf("%w: no embedder", ErrLoad)
	}
	m, err := readManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	switch {
	case len(m.Documents) == 0:
		return nil, fmt.Errorf("%w: index is empty", ErrLoad)
	case m.Dimensions != emb.Dimensions():
		return nil, fmt.Errorf("%w: index has dimension %d, embedder produces %d", ErrLoad, m.Dimensions, emb.Dimensions())
	case m.Model != emb.Model():
		return nil, fmt.Errorf("%w: index built with model %q, embedder is %q", ErrLoad, m.Model, emb.Model())
	}

	f, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	h, err := vector.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, vectorsFile, err)
	}
	switch {
	case h.Count != len(m.Documents):
		return nil, fmt.Errorf("%w: %d vectors but %d documents", ErrLoad, h.Count, len(m.Documents))
	case h.Dimensions != m.Dimensions || h.Metric != m.Metric:
		return nil, fmt.Errorf("%w: manifest and vectors disagree", ErrLoad)
	case h.EncodedSize() != info.Size():
		return nil, fmt.Errorf("%w: %s is %d bytes, header implies %d", ErrLoad, vectorsFile, info.Size(), h.EncodedSize())
	}
	mem, err := vector.ReadVectors(f, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, vectorsFile, err)
	}

	return &Index{embedder: emb, model: m.Model, vectors: mem, docs: m.Documents}, nil
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found", manifestFile)
		}
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", manifestFile, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", manifestFile, m.Version)
	}
	for i, d := range m.Documents {
		if d.Table == "" {
			return nil, fmt.Errorf("%s: document %d has no table", manifestFile, i)
		}
	}
	return &m, nil
}

// Exists reports whether dir holds a saved index.
func Exists(dir string) bool {
	for _, name := range []string{vectorsFile, manifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
