package schedule

import "fmt"

// FormatError reports time text that is not valid HH:MM 24-hour form.
// The message is the one users see, so it stays a full sentence.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return "Time must be in HH:MM 24-hour format"
}

// ValidationReason classifies why a class was rejected before the conflict
// scan ever ran.
type ValidationReason int

const (
	EmptyName ValidationReason = iota
	StartNotBeforeEnd
	NoDays
)

// ValidationError reports a structurally invalid class submission.
type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case EmptyName:
		return "Class name cannot be empty."
	case StartNotBeforeEnd:
		return "Start time must be before end time."
	case NoDays:
		return "Select at least one day."
	}
	return "invalid class"
}

// ConflictError reports the first stored entry whose time range overlaps the
// candidate on at least one shared day. Only the first hit is reported; the
// scan stops there rather than collecting every collision.
type ConflictError struct {
	Name string // conflicting entry's name
	Days DaySet // days both classes meet on
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Class conflicts with existing class '%s' on %s.", e.Name, e.Days)
}
