package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// FileLedger writes a batch report to a single JSON file. The ledger holds
// private keys and mnemonics, so it is created with owner-only permissions.
type FileLedger struct {
	path string
	log  *slog.Logger
}

// NewFileLedger creates a ledger writer for path. Nothing is written until
// Write is called.
func NewFileLedger(path string, log *slog.Logger) *FileLedger {
	return &FileLedger{
		path: path,
		log:  log,
	}
}

// Write serializes the report as an indented JSON array and replaces the
// ledger file atomically.
func (l *FileLedger) Write(report interfaces.Report) error {
	if report == nil {
		report = interfaces.Report{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set ledger permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to move ledger into place: %w", err)
	}

	l.log.Debug("Wrote ledger",
		slog.String("path", l.path),
		slog.Int("records", len(report)),
		slog.Int("size", len(data)))

	return nil
}

// Location returns the ledger file path.
func (l *FileLedger) Location() string {
	return l.path
}

// ReadLedger loads a previously written ledger.
func ReadLedger(path string) (interfaces.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var report interfaces.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	return report, nil
}
