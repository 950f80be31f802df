package models

// ExecResult is the outcome of one sandbox run.
// Exactly one of Output or Error is set; Warnings only accompanies Output.
type ExecResult struct {
	Output   string `json:"output,omitempty"`
	Warnings string `json:"warnings,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the run produced an error instead of output.
func (r ExecResult) Failed() bool {
	return r.Error != ""
}

// ToolError is the only failure shape a tool returns to its caller.
type ToolError struct {
	Error string `json:"error"`
}

// NewToolError builds the failure shape from an error.
func NewToolError(err error) ToolError {
	return ToolError{Error: err.Error()}
}

// ChartResult is returned by the chart tool.
type ChartResult struct {
	ChartPath string `json:"chart_path"`
}

// EmailResult is returned by the email tool.
type EmailResult struct {
	Result string `json:"result"`
}
