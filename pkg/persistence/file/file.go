// Package file provides JSON-file persistence for development and tests.
// One process owns the store at a time; a store-wide mutex serializes
// writes so conditional execution transitions stay atomic.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cascadehq/cascade/pkg/persistence"
)

type Persistence struct {
	root string
	mu   sync.RWMutex

	workflows  *WorkflowRepository
	executions *ExecutionRepository
	accounts   *AccountRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{store: p}
	p.executions = &ExecutionRepository{store: p}
	p.accounts = &AccountRepository{store: p}

	return p
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) Accounts() persistence.AccountRepository {
	return p.accounts
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(p.root, 0o755)
	if err != nil {
		return fmt.Errorf("file store root is not writable: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// write marshals value to <root>/<dir>/<id>.json, creating the directory as
// needed. Callers hold the store mutex.
func (p *Persistence) write(dir, id string, value any) error {
	target := filepath.Join(p.root, dir)

	err := os.MkdirAll(target, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	err = os.WriteFile(filepath.Join(target, id+".json"), payload, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// read unmarshals <root>/<dir>/<id>.json into out, returning notFound when
// the file does not exist.
func (p *Persistence) read(dir, id string, out any, notFound error) error {
	payload, err := os.ReadFile(filepath.Join(p.root, dir, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound
		}

		return fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(payload, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", dir, id, err)
	}

	return nil
}

// readAll decodes every JSON file in <root>/<dir> via decode. A missing
// directory is an empty result.
func (p *Persistence) readAll(dir string, decode func(payload []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(p.root, dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		payload, err := os.ReadFile(filepath.Join(p.root, dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s/%s: %w", dir, entry.Name(), err)
		}

		err = decode(payload)
		if err != nil {
			return fmt.Errorf("failed to decode %s/%s: %w", dir, entry.Name(), err)
		}
	}

	return nil
}
