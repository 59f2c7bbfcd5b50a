package notebooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/reusee/tainb/outputs"
)

const Version = "1.0"

var (
	ErrIndex   = errors.New("cell index out of range")
	ErrNotCode = errors.New("not a code cell")
)

type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
)

type Cell struct {
	ID             string         `json:"id"`
	Type           CellType       `json:"type"`
	Source         string         `json:"source"`
	Outputs        outputs.List   `json:"outputs"`
	ExecutionCount *int           `json:"execution_count"`
	Metadata       map[string]any `json:"metadata"`
}

func NewCell(typ CellType, source string) *Cell {
	return &Cell{
		ID:       uuid.NewString(),
		Type:     typ,
		Source:   source,
		Outputs:  outputs.List{},
		Metadata: map[string]any{},
	}
}

// SessionState is the JSON-safe part of a kernel embedded in a document.
type SessionState struct {
	UserNS         map[string]any `json:"user_ns"`
	ExecutionCount int            `json:"execution_count"`
}

type Document struct {
	Version      string         `json:"version"`
	Cells        []*Cell        `json:"cells"`
	Metadata     map[string]any `json:"metadata"`
	SessionState *SessionState  `json:"session_state"`
}

func New(name string) *Document {
	if name == "" {
		name = "Untitled"
	}
	now := time.Now().Format(time.RFC3339Nano)
	return &Document{
		Version: Version,
		Cells:   []*Cell{},
		Metadata: map[string]any{
			"name":     name,
			"created":  now,
			"modified": now,
		},
	}
}

// Decode reads a document. Numbers keep their textual form so integral values stay integers.
func Decode(data []byte) (*Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	if doc.Version == "" {
		doc.Version = Version
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if doc.Cells == nil {
		doc.Cells = []*Cell{}
	}
	for _, cell := range doc.Cells {
		if cell.ID == "" {
			cell.ID = uuid.NewString()
		}
		if cell.Type == "" {
			cell.Type = CellCode
		}
		if cell.Outputs == nil {
			cell.Outputs = outputs.List{}
		}
		if cell.Metadata == nil {
			cell.Metadata = map[string]any{}
		}
	}
	return &doc, nil
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Save writes the document atomically.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (d *Document) touch() {
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	d.Metadata["modified"] = time.Now().Format(time.RFC3339Nano)
}

func (d *Document) Cell(index int) (*Cell, error) {
	if index < 0 || index >= len(d.Cells) {
		return nil, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	return d.Cells[index], nil
}

func (d *Document) AddCell(cell *Cell) *Cell {
	d.Cells = append(d.Cells, cell)
	d.touch()
	return cell
}

// InsertCell inserts cell before index; index may equal the cell count.
func (d *Document) InsertCell(index int, cell *Cell) (*Cell, error) {
	if index < 0 || index > len(d.Cells) {
		return nil, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	d.Cells = append(d.Cells, nil)
	copy(d.Cells[index+1:], d.Cells[index:])
	d.Cells[index] = cell
	d.touch()
	return cell, nil
}

func (d *Document) RemoveCell(index int) (*Cell, error) {
	cell, err := d.Cell(index)
	if err != nil {
		return nil, err
	}
	d.Cells = append(d.Cells[:index], d.Cells[index+1:]...)
	d.touch()
	return cell, nil
}

// UpdateCell applies fn to the cell at index.
func (d *Document) UpdateCell(index int, fn func(*Cell)) error {
	cell, err := d.Cell(index)
	if err != nil {
		return err
	}
	fn(cell)
	d.touch()
	return nil
}
