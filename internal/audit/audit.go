// Package audit records security relevant events and keeps snapshots of
// imported source documents.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Auditor writes JSON snapshots into AuditDir.
type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveJSON saves data as indented JSON under a random UUID filename and
// returns the filename.
func (a *Auditor) SaveJSON(data any) (string, error) {
	if err := os.MkdirAll(a.AuditDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	filename := uuid.NewString() + ".json"
	path := filepath.Join(a.AuditDir, filename)
	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}

	log.Printf("Saved audit snapshot %s", path)
	return filename, nil
}

// Load reads a snapshot written by SaveJSON into v.
func (a *Auditor) Load(filename string, v any) error {
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid audit filename %q", filename)
	}
	data, err := os.ReadFile(filepath.Join(a.AuditDir, filename))
	if err != nil {
		return fmt.Errorf("failed to read audit file: %w", err)
	}
	return json.Unmarshal(data, v)
}
