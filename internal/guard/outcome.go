package guard

// Outcome is a stage's verdict: continue down the pipeline, or reject
// with an HTTP status and a short machine-readable code.
type Outcome struct {
	rejected bool
	Status   int
	Code     string
}

// Continue lets the pipeline proceed to the next stage.
func Continue() Outcome {
	return Outcome{}
}

// Reject terminates the pipeline with a status and reason code.
func Reject(status int, code string) Outcome {
	return Outcome{rejected: true, Status: status, Code: code}
}

// Rejected reports whether the outcome terminates the pipeline.
func (o Outcome) Rejected() bool {
	return o.rejected
}
