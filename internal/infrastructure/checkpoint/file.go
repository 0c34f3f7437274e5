// Package checkpoint persists the id of the last document the enrichment pass wrote.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"BillsScanner/internal/infrastructure/atomicfile"
	"BillsScanner/internal/ports"
)

type state struct {
	LastProcessedDoc string `json:"last_processed_doc"`
}

// File keeps the checkpoint in a small JSON document that is replaced atomically on every save.
type File struct {
	path string
	mu   sync.Mutex
}

var _ ports.Checkpoint = (*File)(nil)

// NewFile returns a checkpoint stored at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load returns the stored key. A missing file or an empty key means no checkpoint.
func (f *File) Load(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var st state
	err := atomicfile.ReadJSON(f.path, &st)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read checkpoint: %w", err)
	}
	return st.LastProcessedDoc, st.LastProcessedDoc != "", nil
}

// Save durably replaces the stored key.
func (f *File) Save(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("checkpoint key is empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := atomicfile.WriteJSON(f.path, state{LastProcessedDoc: key}); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
