package outputs

import "fmt"

// Format renders an output as plain text for terminals.
func Format(output Output) string {
	switch o := output.(type) {
	case Stream:
		return o.Text
	case EvaluatedResult:
		return o.Data.Plain()
	case DisplayData:
		if s := o.Data.Plain(); s != "" {
			return s
		}
		return fmt.Sprint(o.Data.Keys())
	case Diagnostic:
		name := o.EName
		if name == "" {
			name = "Error"
		}
		return name + ": " + o.EValue
	}
	return fmt.Sprint(output)
}
