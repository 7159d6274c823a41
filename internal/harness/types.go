package harness

// Output is what one repository returned for one query step.
type Output struct {
	Step       string `json:"step"`
	Repository string `json:"repository"`

	// Query is the normalized query in its debug form.
	Query string `json:"query,omitempty"`

	// SQL is the compiled SQLite statement, set for SQL repositories.
	SQL string `json:"sql,omitempty"`

	// Records hold dumped property values keyed by property name.
	Records []map[string]any `json:"records"`

	// Error is the query error code when construction failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation matched and the
	// repositories agreed on every step.
	Pass bool `json:"pass"`

	// Outputs holds one entry per step and repository, in execution order.
	Outputs []Output `json:"outputs"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Outputs: []Output{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutput records a step's output.
func (r *Result) AddOutput(out Output) {
	r.Outputs = append(r.Outputs, out)
}

// StepOutputs returns the outputs recorded for step, one per repository.
func (r *Result) StepOutputs(step string) []Output {
	var outs []Output
	for _, o := range r.Outputs {
		if o.Step == step {
			outs = append(outs, o)
		}
	}
	return outs
}
