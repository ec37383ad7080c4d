package domain

// StageResult makes the absorbed-versus-fatal distinction of each pipeline
// stage explicit. Per-item failures accumulate in Errors and never abort the
// run; a non-nil Fatal means the owning job must be marked failed.
type StageResult struct {
	Documents int
	Chunks    int
	Errors    int
	Fatal     error
}

func (r *StageResult) Merge(other StageResult) {
	r.Documents += other.Documents
	r.Chunks += other.Chunks
	r.Errors += other.Errors
	if r.Fatal == nil {
		r.Fatal = other.Fatal
	}
}
