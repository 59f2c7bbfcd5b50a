package kernels

import (
	"encoding/json"

	"github.com/reusee/tainb/outputs"
	"go.starlark.net/starlark"
)

type ExecutionRecord struct {
	Sequence    int
	Success     bool
	Outputs     outputs.List
	Error       string
	ReturnValue starlark.Value
}

type HistoryEntry struct {
	Sequence int
	Fragment string
	Record   *ExecutionRecord
}

// recordDict is the persisted form of an ExecutionRecord.
// The return value survives only as its textual representation.
type recordDict struct {
	Success        bool         `json:"success"`
	Outputs        outputs.List `json:"outputs"`
	ExecutionCount int          `json:"execution_count"`
	Error          *string      `json:"error"`
	ReturnValue    *string      `json:"return_value"`
}

func (r *ExecutionRecord) MarshalJSON() ([]byte, error) {
	dict := recordDict{
		Success:        r.Success,
		Outputs:        r.Outputs,
		ExecutionCount: r.Sequence,
	}
	if dict.Outputs == nil {
		dict.Outputs = outputs.List{}
	}
	if r.Error != "" {
		dict.Error = &r.Error
	}
	if r.ReturnValue != nil && r.ReturnValue != starlark.None {
		var s string
		if str, ok := r.ReturnValue.(starlark.String); ok {
			s = string(str)
		} else {
			s = r.ReturnValue.String()
		}
		dict.ReturnValue = &s
	}
	return json.Marshal(dict)
}

func (r *ExecutionRecord) UnmarshalJSON(data []byte) error {
	var dict recordDict
	if err := json.Unmarshal(data, &dict); err != nil {
		return err
	}
	*r = ExecutionRecord{
		Sequence: dict.ExecutionCount,
		Success:  dict.Success,
		Outputs:  dict.Outputs,
	}
	if dict.Error != nil {
		r.Error = *dict.Error
	}
	if dict.ReturnValue != nil {
		r.ReturnValue = starlark.String(*dict.ReturnValue)
	}
	return nil
}

// Results returns the evaluated-result outputs of the record.
func (r *ExecutionRecord) Results() (ret []outputs.EvaluatedResult) {
	for _, output := range r.Outputs {
		if result, ok := output.(outputs.EvaluatedResult); ok {
			ret = append(ret, result)
		}
	}
	return
}

// Diagnostics returns the diagnostic outputs of the record.
func (r *ExecutionRecord) Diagnostics() (ret []outputs.Diagnostic) {
	for _, output := range r.Outputs {
		if diag, ok := output.(outputs.Diagnostic); ok {
			ret = append(ret, diag)
		}
	}
	return
}

// StreamText concatenates the text written to the given channel.
func (r *ExecutionRecord) StreamText(channel outputs.Channel) string {
	var ret string
	for _, output := range r.Outputs {
		if stream, ok := output.(outputs.Stream); ok && stream.Name == channel {
			ret += stream.Text
		}
	}
	return ret
}
