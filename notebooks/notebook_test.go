package notebooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reusee/tainb/kernels"
	"github.com/reusee/tainb/outputs"
	"github.com/reusee/tainb/watchers"
)

func TestCells(t *testing.T) {
	doc := New("")
	if doc.Metadata["name"] != "Untitled" {
		t.Fatalf("got %v", doc.Metadata)
	}
	first := doc.AddCell(NewCell(CellCode, "first"))
	third := doc.AddCell(NewCell(CellCode, "third"))
	if _, err := doc.InsertCell(1, NewCell(CellMarkdown, "# second")); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.InsertCell(4, NewCell(CellCode, "x")); !errors.Is(err, ErrIndex) {
		t.Fatalf("got %v", err)
	}
	if first.ID == third.ID {
		t.Fatal("duplicated id")
	}

	var sources []string
	for _, cell := range doc.Cells {
		sources = append(sources, cell.Source)
	}
	if strings.Join(sources, ",") != "first,# second,third" {
		t.Fatalf("got %v", sources)
	}

	if err := doc.UpdateCell(2, func(cell *Cell) {
		cell.Source = "3"
	}); err != nil {
		t.Fatal(err)
	}
	removed, err := doc.RemoveCell(0)
	if err != nil {
		t.Fatal(err)
	}
	if removed != first || len(doc.Cells) != 2 || doc.Cells[1].Source != "3" {
		t.Fatalf("got %+v", doc.Cells)
	}
	if _, err := doc.RemoveCell(2); !errors.Is(err, ErrIndex) {
		t.Fatalf("got %v", err)
	}
	if _, err := doc.Cell(-1); !errors.Is(err, ErrIndex) {
		t.Fatalf("got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "a.nb.json")
	k := kernels.New(nil, 0)
	doc := New("analysis")
	doc.AddCell(NewCell(CellCode, "x = 10\nprint('hi')\nx * 3"))
	doc.AddCell(NewCell(CellMarkdown, "notes"))
	doc.AddCell(NewCell(CellCode, "1 / 0"))

	record, err := doc.RunCell(context.Background(), k, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !record.Success {
		t.Fatalf("got %+v", record)
	}
	if _, err := doc.RunCell(context.Background(), k, 1); !errors.Is(err, ErrNotCode) {
		t.Fatalf("got %v", err)
	}
	record, err = doc.RunCell(context.Background(), k, 2)
	if err != nil {
		t.Fatal(err)
	}
	if record.Success {
		t.Fatal("expecting failure")
	}

	for _, fragment := range []string{
		`y = {"a": [1, 2.5, "s", None]}`,
		"def f():\n    return 1",
	} {
		record := k.Execute(fragment)
		if !record.Success || record.StreamText(outputs.Stderr) != "" {
			t.Fatalf("%q: got %+v", fragment, record.Outputs)
		}
	}
	doc.EmbedSession(k)

	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("got %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Metadata["name"] != "analysis" || len(loaded.Cells) != 3 {
		t.Fatalf("got %+v", loaded)
	}
	cell := loaded.Cells[0]
	if cell.ExecutionCount == nil || *cell.ExecutionCount != 1 {
		t.Fatalf("got %v", cell.ExecutionCount)
	}
	if len(cell.Outputs) != 2 {
		t.Fatalf("got %+v", cell.Outputs)
	}
	if s, ok := cell.Outputs[0].(outputs.Stream); !ok || s.Text != "hi\n" {
		t.Fatalf("got %+v", cell.Outputs[0])
	}
	if r, ok := cell.Outputs[1].(outputs.EvaluatedResult); !ok || r.Data.Plain() != "30" {
		t.Fatalf("got %+v", cell.Outputs[1])
	}
	if d, ok := loaded.Cells[2].Outputs[0].(outputs.Diagnostic); !ok || d.EName != kernels.KindZeroDivision {
		t.Fatalf("got %+v", loaded.Cells[2].Outputs)
	}
	if loaded.Cells[1].ExecutionCount != nil {
		t.Fatal("markdown cell executed")
	}

	k2 := kernels.New(nil, 0)
	ok, err := loaded.RestoreSession(k2)
	if err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if k2.Sequence() != 4 {
		t.Fatalf("got %d", k2.Sequence())
	}
	if _, ok := k2.Binding("f"); ok {
		t.Fatal("function should not be embedded")
	}
	result := k2.Execute(`[x, y["a"][0] + 1, y["a"][1]]`)
	if !result.Success || result.ReturnValue.String() != "[10, 2, 2.5]" {
		t.Fatalf("got %+v", result)
	}
	if result.Sequence != 5 {
		t.Fatalf("got %d", result.Sequence)
	}

	loaded.ClearSession()
	if ok, _ := loaded.RestoreSession(k2); ok {
		t.Fatal("expecting no session")
	}
}

func TestDecodeDefaults(t *testing.T) {
	doc, err := Decode([]byte(`{"cells": [{"source": "1"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != Version || doc.Cells[0].Type != CellCode || doc.Cells[0].ID == "" {
		t.Fatalf("got %+v", doc)
	}
	if _, err := Decode([]byte("{")); err == nil {
		t.Fatal("expecting error")
	}
}

func TestSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.nb.json")
	sync, err := Open(path, "shared", watchers.New(path, time.Hour, nil))
	if err != nil {
		t.Fatal(err)
	}
	sync.Document.AddCell(NewCell(CellCode, "1"))
	if err := sync.Save(); err != nil {
		t.Fatal(err)
	}
	sync.watcher.Check()
	if sync.Changed() {
		t.Fatal("own write reported")
	}

	// another writer
	other, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	other.AddCell(NewCell(CellCode, "2"))
	if err := other.Save(path); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	sync.watcher.Check()
	if !sync.Changed() {
		t.Fatal("external write not reported")
	}

	if err := sync.Reload(); err != nil {
		t.Fatal(err)
	}
	if sync.Changed() || len(sync.Document.Cells) != 2 {
		t.Fatalf("got %v %d", sync.Changed(), len(sync.Document.Cells))
	}
}
