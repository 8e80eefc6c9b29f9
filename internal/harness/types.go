package harness

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every cycle matched its expectations.
	Pass bool `json:"pass"`

	// Cycles holds one outcome per scenario cycle, in order.
	Cycles []CycleOutcome `json:"cycles"`

	// Errors lists expectation mismatches. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// CycleOutcome is what one cycle actually did, including the full
// content of everything it published.
type CycleOutcome struct {
	Token  string `json:"token"`
	Status string `json:"status"`
	DryRun bool   `json:"dry_run,omitempty"`

	Added      int `json:"added"`
	Modified   int `json:"modified"`
	Removed    int `json:"removed"`
	Unchanged  int `json:"unchanged"`
	Dropped    int `json:"dropped"`
	Duplicates int `json:"duplicates"`

	Outputs []OutputFile `json:"outputs,omitempty"`

	// Error is the joined failure text for failed or partial cycles.
	Error string `json:"error,omitempty"`
}

// OutputFile is one published file, captured immediately after its
// cycle so later rotation cannot hide it.
type OutputFile struct {
	Entity  string `json:"entity"`
	Name    string `json:"name"`
	Records int    `json:"records"`
	Content string `json:"content"`
}

// AddError records an expectation mismatch and fails the result.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
