package notebooks

import (
	"context"
	"fmt"

	"github.com/reusee/tainb/kernels"
)

// EmbedSession stores the JSON-safe bindings and the sequence counter of k.
func (d *Document) EmbedSession(k *kernels.Kernel) {
	d.SessionState = &SessionState{
		UserNS:         k.JSONBindings(),
		ExecutionCount: k.Sequence(),
	}
}

// ClearSession drops the embedded session block.
func (d *Document) ClearSession() {
	d.SessionState = nil
}

// RestoreSession merges the embedded session block into k. It reports false when there is none.
func (d *Document) RestoreSession(k *kernels.Kernel) (bool, error) {
	if d.SessionState == nil {
		return false, nil
	}
	if err := k.RestoreJSONBindings(d.SessionState.UserNS); err != nil {
		return true, fmt.Errorf("restore session: %w", err)
	}
	k.RestoreState(d.SessionState.ExecutionCount, k.History())
	return true, nil
}

// RunCell executes the code cell at index and stores its outputs and sequence number in the cell.
func (d *Document) RunCell(ctx context.Context, k *kernels.Kernel, index int) (*kernels.ExecutionRecord, error) {
	cell, err := d.Cell(index)
	if err != nil {
		return nil, err
	}
	if cell.Type != CellCode {
		return nil, fmt.Errorf("cell %d: %w", index, ErrNotCode)
	}
	record := k.ExecuteContext(ctx, cell.Source)
	count := record.Sequence
	cell.ExecutionCount = &count
	cell.Outputs = record.Outputs
	d.touch()
	return record, nil
}
