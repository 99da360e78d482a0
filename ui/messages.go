package ui

// TUI message types posted by the pipeline goroutine

// LoadProgressMsg reports model-load progress. Percent is already
// monotonic; the pipeline wraps its callback with
// vision.MonotonicProgress before posting.
type LoadProgressMsg struct {
	Status  string
	Percent int // 0 to 100
}

// LoadDoneMsg signals the end of the load phase
type LoadDoneMsg struct {
	Err error
}

// RowStartedMsg signals that generation began for a row
type RowStartedMsg struct {
	Index int
}

// RowTextMsg signals that a row's response text changed
type RowTextMsg struct {
	Index int
}

// RowDoneMsg signals that a row finished, successfully or not
type RowDoneMsg struct {
	Index int
	Err   error
}

// BatchDoneMsg signals the end of the whole run
type BatchDoneMsg struct {
	Err error
}
