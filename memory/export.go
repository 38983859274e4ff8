package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Export is the JSON document written by Manager.Export.
type Export struct {
	ExportTimestamp time.Time        `json:"export_timestamp"`
	TotalMemories   int              `json:"total_memories"`
	Memories        []ExportedMemory `json:"memories"`
}

// ExportedMemory is one record in an export.
type ExportedMemory struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Export writes every record as indented JSON to w.
func (m *Manager) Export(ctx context.Context, w io.Writer) (err error) {
	defer func() { m.metrics.ObserveMemoryOp("export", err) }()

	records, err := m.store.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("list memories: %w", err)
	}

	doc := Export{
		ExportTimestamp: time.Now().UTC(),
		TotalMemories:   len(records),
		Memories:        make([]ExportedMemory, 0, len(records)),
	}
	for _, rec := range records {
		doc.Memories = append(doc.Memories, ExportedMemory{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	m.logger.Info("memories exported", "count", len(records))
	return nil
}

// ExportFile writes the export to path, replacing any existing file.
func (m *Manager) ExportFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := m.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
