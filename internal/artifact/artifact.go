// Package artifact persists a fitted model and its preprocessing as one
// versioned bundle.
//
// A bundle is a JSON envelope. The model and preprocessing state are opaque
// binary blobs produced by their own MarshalBinary, so the envelope can be
// inspected without decoding them.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/config"
	"github.com/thalesfsp/tune/internal/model"
)

// SchemaVersion is the bundle layout written by this package. Readers reject
// any other version.
const SchemaVersion = 1

// Bundle is a fitted model plus everything needed to score new rows.
type Bundle struct {
	SchemaVersion     int             `json:"schema_version"`
	CreatedAt         time.Time       `json:"created_at"`
	Config            config.Config   `json:"config"`
	Features          []string        `json:"features"`
	Hyperparameters   tune.Assignment `json:"hyperparameters"`
	ModelKind         string          `json:"model_kind"`
	Model             []byte          `json:"model"`
	PreprocessingKind string          `json:"preprocessing_kind,omitempty"`
	Preprocessing     []byte          `json:"preprocessing,omitempty"`
}

// New encodes clf and, when non-nil, pre. Both must implement
// model.Persistable.
func New(cfg config.Config, features []string, hp tune.Assignment, clf model.Classifier, pre model.Preprocessor) (*Bundle, error) {
	p, ok := clf.(model.Persistable)
	if !ok {
		return nil, fmt.Errorf("classifier %T cannot be persisted", clf)
	}

	blob, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		SchemaVersion:   SchemaVersion,
		CreatedAt:       time.Now().UTC(),
		Config:          cfg,
		Features:        append([]string(nil), features...),
		Hyperparameters: hp.Clone(),
		ModelKind:       p.Kind(),
		Model:           blob,
	}

	if pre != nil {
		pp, ok := pre.(model.Persistable)
		if !ok {
			return nil, fmt.Errorf("preprocessor %T cannot be persisted", pre)
		}

		if b.Preprocessing, err = pp.MarshalBinary(); err != nil {
			return nil, err
		}

		b.PreprocessingKind = pp.Kind()
	}

	return b, nil
}

// Classifier decodes the model blob.
func (b *Bundle) Classifier() (model.Classifier, error) {
	return model.DecodeClassifier(b.ModelKind, b.Model)
}

// Preprocessor decodes the preprocessing blob. It returns nil, nil when the
// bundle has no preprocessing.
func (b *Bundle) Preprocessor() (model.Preprocessor, error) {
	if b.PreprocessingKind == "" {
		return nil, nil
	}

	return model.DecodePreprocessor(b.PreprocessingKind, b.Preprocessing)
}

// Write encodes b as indented JSON.
func (b *Bundle) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	return nil
}

// Read decodes a bundle and checks its schema version and kinds.
func Read(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	if b.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported artifact schema version %d (want %d)", b.SchemaVersion, SchemaVersion)
	}

	if _, err := b.Classifier(); err != nil {
		return nil, fmt.Errorf("invalid artifact model: %w", err)
	}

	if _, err := b.Preprocessor(); err != nil {
		return nil, fmt.Errorf("invalid artifact preprocessing: %w", err)
	}

	return &b, nil
}

// Save writes b to path, replacing any existing file.
func Save(path string, b *Bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}

	if err := b.Write(f); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

// Load reads the bundle at path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
