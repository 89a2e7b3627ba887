package errors

import (
	"sync"
	"time"
)

// Entry is one recorded failure on an error stack.
type Entry struct {
	Err    *Error
	Time   time.Time
	Unwind bool // recorded during cleanup, secondary to the primary failure
}

// Stack accumulates failures raised while a dispatch call unwinds. It is the
// reporting facility the dispatch layer pushes into alongside returning the
// error; callers inspect it for the full failure context and clear it once
// the condition has been handled.
type Stack struct {
	mu      sync.Mutex
	entries []Entry
}

// NewStack creates an empty error stack
func NewStack() *Stack {
	return &Stack{}
}

// Raise records a primary failure on the stack
func (s *Stack) Raise(err error) {
	s.push(err, false)
}

// RaiseOnUnwind records a failure encountered during cleanup. The entry is
// marked secondary so it never masks the primary failure already recorded.
func (s *Stack) RaiseOnUnwind(err error) {
	s.push(err, true)
}

func (s *Stack) push(err error, unwind bool) {
	if err == nil {
		return
	}

	e, ok := err.(*Error)
	if !ok {
		e = Wrap(err, ErrorTypeInternal, "untyped error")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Err: e, Time: time.Now(), Unwind: unwind})
}

// Clear discards all recorded entries. Used when an earlier failure turned
// out to be noise, e.g. before retrying an open with a discovered connector.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Entries returns a snapshot of the recorded entries, oldest first
func (s *Stack) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Empty reports whether nothing has been raised since the last Clear
func (s *Stack) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

// Len returns the number of recorded entries
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Default process-wide stack, used when callers do not supply their own.
var defaultStack = NewStack()

// DefaultStack returns the process-wide error stack
func DefaultStack() *Stack {
	return defaultStack
}

// Raise records a primary failure on the default stack
func Raise(err error) {
	defaultStack.Raise(err)
}

// RaiseOnUnwind records a cleanup failure on the default stack
func RaiseOnUnwind(err error) {
	defaultStack.RaiseOnUnwind(err)
}

// ClearStack clears the default stack
func ClearStack() {
	defaultStack.Clear()
}
