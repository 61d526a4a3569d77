package model

// Status is the outcome of relocating a single file.
type Status int

const (
	// Relocated indicates the file was rewritten.
	Relocated Status = iota
	// Unchanged indicates the file needed no edits.
	Unchanged
	// Failed indicates the file could not be processed.
	Failed
	// Invalid indicates the file is not valid JavaScript.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Relocated:
		return "relocated"
	case Unchanged:
		return "unchanged"
	case Failed:
		return "failed"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Report is the per-file result shown to the user.
type Report struct {
	Source Path
	Status Status
	// Output is where the rewritten source was written, if anywhere.
	Output Path
	// Assets lists the names emitted while relocating this file.
	Assets []string
	// Edits counts the rewrites applied to the source.
	Edits int
	Err   error
}
