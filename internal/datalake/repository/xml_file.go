package repository

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"go.uber.org/zap"
)

// XMLFile stores the entity graph as a single XML document on disk.
type XMLFile struct {
	path string
	log  *zap.Logger
}

func Provide(cfg config.Config, log *zap.Logger) domain.Repository {
	return NewXMLFile(cfg.DataFile, log)
}

func NewXMLFile(path string, log *zap.Logger) *XMLFile {
	if log == nil {
		log = zap.NewNop()
	}
	return &XMLFile{path: path, log: log.Named("datalake.repository")}
}

// Load reads the state file. A missing or empty file yields an empty state.
// A file that does not parse is moved aside and also yields an empty state.
func (f *XMLFile) Load(ctx context.Context) (*domain.State, []string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.log.Info("state file not found, starting empty", zap.String("path", f.path))
		return &domain.State{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read state file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &domain.State{}, nil, nil
	}

	var doc document
	if err := xml.Unmarshal(raw, &doc); err != nil {
		aside := f.path + ".corrupt"
		f.log.Warn("state file is corrupt, starting empty",
			zap.String("path", f.path),
			zap.String("moved_to", aside),
			zap.Error(err),
		)
		if rerr := os.Rename(f.path, aside); rerr != nil {
			f.log.Warn("failed to move corrupt state file", zap.Error(rerr))
		}
		return &domain.State{}, []string{fmt.Sprintf("state file corrupt: %v", err)}, nil
	}

	state, diags := decodeState(doc)
	for _, d := range diags {
		f.log.Warn("skipped record while loading state", zap.String("detail", d))
	}
	return state, diags, nil
}

// Save replaces the state file with the given graph. The document is written
// to a temporary file in the same directory and renamed over the target.
func (f *XMLFile) Save(ctx context.Context, state domain.State) error {
	out, err := xml.MarshalIndent(encodeState(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(xml.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Reset overwrites the state file with an empty document.
func (f *XMLFile) Reset(ctx context.Context) error {
	return f.Save(ctx, domain.State{})
}
