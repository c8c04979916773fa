package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/disaster-response/internal/evaluation"
	"github.com/ricesearch/disaster-response/internal/features"
	"github.com/ricesearch/disaster-response/internal/forest"
	"github.com/ricesearch/disaster-response/internal/pkg/errors"
	"github.com/ricesearch/disaster-response/internal/pkg/hash"
	"github.com/ricesearch/disaster-response/internal/search"
	"github.com/ricesearch/disaster-response/internal/text"
)

// File names inside a model directory.
const (
	ArtifactFile = "model.gob.zst"
	ManifestFile = "manifest.yaml"

	manifestVersion = 1
)

// Storage persists a trained model.
type Storage interface {
	Save(m *TrainedModel) error
	// Load returns the stored model with analyzer attached to its
	// vectorizer.
	Load(analyzer text.Analyzer) (*TrainedModel, error)
	Exists() bool
}

// Manifest describes an artifact in human-readable form.
type Manifest struct {
	Version    int                      `yaml:"version"`
	RunID      string                   `yaml:"run_id"`
	TrainedAt  time.Time                `yaml:"trained_at"`
	Labels     []string                 `yaml:"labels"`
	Vocabulary int                      `yaml:"vocabulary"`
	Params     search.Params            `yaml:"params"`
	Trees      int                      `yaml:"trees"`
	Seed       int64                    `yaml:"seed"`
	Scoring    string                   `yaml:"scoring"`
	CVScore    float64                  `yaml:"cv_score"`
	Candidates []search.CandidateResult `yaml:"candidates"`
	Evaluation *evaluation.Summary      `yaml:"evaluation,omitempty"`
	Artifact   string                   `yaml:"artifact"`
	SHA256     string                   `yaml:"sha256"`
}

// artifact is the gob payload. The vectorizer encodes itself through
// MarshalBinary.
type artifact struct {
	Labels     []string
	Vectorizer *features.Vectorizer
	Forest     *forest.MultiOutput
}

// MemoryStorage keeps a model in memory (for testing).
type MemoryStorage struct {
	model *TrainedModel
	mu    sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Save(tm *TrainedModel) error {
	if err := tm.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = tm
	return nil
}

// Load returns a copy of the saved model. A non-nil analyzer is attached to
// the copy's vectorizer; the stored model is never modified.
func (m *MemoryStorage) Load(analyzer text.Analyzer) (*TrainedModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.model == nil {
		return nil, errors.NotFoundError("model")
	}
	c := *m.model
	if analyzer != nil {
		c.Vectorizer = c.Vectorizer.WithAnalyzer(analyzer)
	}
	return &c, nil
}

func (m *MemoryStorage) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model != nil
}

// FileStorage stores a model as a zstd-compressed gob artifact next to a
// YAML manifest carrying its SHA-256.
type FileStorage struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStorage creates a storage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the model directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

func (f *FileStorage) artifactPath() string {
	return filepath.Join(f.dir, ArtifactFile)
}

func (f *FileStorage) manifestPath() string {
	return filepath.Join(f.dir, ManifestFile)
}

func (f *FileStorage) Save(m *TrainedModel) error {
	if err := m.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := encodeArtifact(m)
	if err != nil {
		return errors.StorageError("failed to encode model", err)
	}

	manifest := Manifest{
		Version:    manifestVersion,
		RunID:      m.RunID,
		TrainedAt:  m.TrainedAt,
		Labels:     m.Labels,
		Vocabulary: m.Vectorizer.VocabularySize(),
		Params:     m.Params,
		Trees:      m.Trees,
		Seed:       m.Seed,
		Scoring:    m.Scoring,
		CVScore:    m.CVScore,
		Candidates: m.Candidates,
		Evaluation: m.Evaluation,
		Artifact:   ArtifactFile,
		SHA256:     hash.SHA256(data),
	}

	manifestData, err := yaml.Marshal(&manifest)
	if err != nil {
		return errors.StorageError("failed to marshal manifest", err)
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return errors.StorageError("failed to create model directory", err)
	}
	if err := writeFileAtomic(f.artifactPath(), data); err != nil {
		return errors.StorageError("failed to write artifact", err)
	}
	if err := writeFileAtomic(f.manifestPath(), manifestData); err != nil {
		return errors.StorageError("failed to write manifest", err)
	}
	return nil
}

// LoadManifest reads the manifest without decoding the artifact.
func (f *FileStorage) LoadManifest() (*Manifest, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadManifestUnlocked()
}

func (f *FileStorage) loadManifestUnlocked() (*Manifest, error) {
	data, err := os.ReadFile(f.manifestPath())
	if os.IsNotExist(err) {
		return nil, errors.NotFoundError(fmt.Sprintf("model manifest in %s", f.dir))
	}
	if err != nil {
		return nil, errors.StorageError("failed to read manifest", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.StorageError("failed to unmarshal manifest", err)
	}
	if manifest.Version != manifestVersion {
		return nil, errors.ValidationError(fmt.Sprintf("unsupported manifest version %d", manifest.Version))
	}
	return &manifest, nil
}

func (f *FileStorage) Load(analyzer text.Analyzer) (*TrainedModel, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	manifest, err := f.loadManifestUnlocked()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(f.dir, manifest.Artifact))
	if os.IsNotExist(err) {
		return nil, errors.NotFoundError(fmt.Sprintf("model artifact %s", manifest.Artifact))
	}
	if err != nil {
		return nil, errors.StorageError("failed to read artifact", err)
	}

	if sum := hash.SHA256(data); sum != manifest.SHA256 {
		return nil, errors.ValidationError("model artifact checksum mismatch").
			WithDetail("expected", manifest.SHA256).
			WithDetail("actual", sum)
	}

	a, err := decodeArtifact(data)
	if err != nil {
		return nil, errors.StorageError("failed to decode model", err)
	}
	if analyzer != nil {
		a.Vectorizer = a.Vectorizer.WithAnalyzer(analyzer)
	}

	m := &TrainedModel{
		RunID:      manifest.RunID,
		Labels:     a.Labels,
		Vectorizer: a.Vectorizer,
		Forest:     a.Forest,
		Params:     manifest.Params,
		Trees:      manifest.Trees,
		Seed:       manifest.Seed,
		Scoring:    manifest.Scoring,
		CVScore:    manifest.CVScore,
		Candidates: manifest.Candidates,
		Evaluation: manifest.Evaluation,
		TrainedAt:  manifest.TrainedAt,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *FileStorage) Exists() bool {
	_, err := os.Stat(f.manifestPath())
	return err == nil
}

func encodeArtifact(m *TrainedModel) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	a := artifact{Labels: m.Labels, Vectorizer: m.Vectorizer, Forest: m.Forest}
	if err := gob.NewEncoder(enc).Encode(&a); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeArtifact(data []byte) (*artifact, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var a artifact
	if err := gob.NewDecoder(dec).Decode(&a); err != nil {
		return nil, err
	}
	if a.Vectorizer == nil || a.Forest == nil {
		return nil, fmt.Errorf("artifact is missing its vectorizer or forest")
	}
	return &a, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
