// Package callctx implements the execution-context stack the dispatch core
// maintains around every call.
//
// Each dispatch call pushes one frame recording which container(s) are
// implicated: the primary container of the object the call was made on,
// and, for operations that move data between containers, a source and a
// destination. Nested dispatch calls push their own frames, so error
// handlers and nested callbacks can always recover the active connector
// without it being threaded through every signature.
//
// The stack is strictly LIFO. Unbalanced push/pop or reset of an unset slot
// is a programming defect, not a recoverable condition, and panics.
package callctx

// Binding is an opaque reference to a container. The stack only compares
// bindings for identity; it never inspects them.
type Binding interface{}

type frame struct {
	primary     Binding
	primaryRefs int
	source      Binding
	dest        Binding
}

// Stack is one execution-context stack. The dispatch core assumes a single
// logical call stack per operation; Stack performs no locking of its own.
type Stack struct {
	frames []*frame
}

// New creates an empty stack
func New() *Stack {
	return &Stack{}
}

// Default process-wide stack used by the dispatch core.
var defaultStack = New()

// Default returns the process-wide stack
func Default() *Stack {
	return defaultStack
}

// Depth returns the number of pushed frames
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Push opens a new context frame
func (s *Stack) Push() {
	s.frames = append(s.frames, &frame{})
}

// Pop closes the top frame. The frame must have been fully reset first.
func (s *Stack) Pop() {
	top := s.top()
	if top == nil {
		panic("callctx: pop on empty context stack")
	}
	if top.primary != nil || top.source != nil || top.dest != nil {
		panic("callctx: pop with live context bindings")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *Stack) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// SetPrimary records the primary container of the executing call.
// Re-entrant sets of the same binding on one frame are reference-counted;
// a different binding on a frame that already has one is a defect.
func (s *Stack) SetPrimary(b Binding) {
	top := s.top()
	if top == nil {
		panic("callctx: set primary without a frame")
	}
	if b == nil {
		panic("callctx: nil primary binding")
	}
	switch top.primary {
	case nil:
		top.primary = b
		top.primaryRefs = 1
	case b:
		top.primaryRefs++
	default:
		panic("callctx: conflicting primary binding on one frame")
	}
}

// ResetPrimary releases one primary reference; the slot clears when the
// count reaches zero
func (s *Stack) ResetPrimary() {
	top := s.top()
	if top == nil || top.primary == nil {
		panic("callctx: reset of unset primary binding")
	}
	top.primaryRefs--
	if top.primaryRefs == 0 {
		top.primary = nil
	}
}

// SetSource records the source container of a cross-container operation
func (s *Stack) SetSource(b Binding) {
	top := s.top()
	if top == nil {
		panic("callctx: set source without a frame")
	}
	if top.source != nil {
		panic("callctx: source binding already set")
	}
	top.source = b
}

// ResetSource clears the source slot
func (s *Stack) ResetSource() {
	top := s.top()
	if top == nil || top.source == nil {
		panic("callctx: reset of unset source binding")
	}
	top.source = nil
}

// SetDest records the destination container of a cross-container operation
func (s *Stack) SetDest(b Binding) {
	top := s.top()
	if top == nil {
		panic("callctx: set dest without a frame")
	}
	if top.dest != nil {
		panic("callctx: dest binding already set")
	}
	top.dest = b
}

// ResetDest clears the destination slot
func (s *Stack) ResetDest() {
	top := s.top()
	if top == nil || top.dest == nil {
		panic("callctx: reset of unset dest binding")
	}
	top.dest = nil
}

// Primary returns the top frame's primary binding, or nil
func (s *Stack) Primary() Binding {
	if top := s.top(); top != nil {
		return top.primary
	}
	return nil
}

// Source returns the top frame's source binding, or nil
func (s *Stack) Source() Binding {
	if top := s.top(); top != nil {
		return top.source
	}
	return nil
}

// Dest returns the top frame's destination binding, or nil
func (s *Stack) Dest() Binding {
	if top := s.top(); top != nil {
		return top.dest
	}
	return nil
}

// Bind pushes a frame with a primary binding and returns the release
// function. The release must run on every exit path; pairing it with defer
// gives the unwind-safe pop the protocol requires.
func (s *Stack) Bind(primary Binding) func() {
	s.Push()
	s.SetPrimary(primary)
	return func() {
		s.ResetPrimary()
		s.Pop()
	}
}

// BindTransfer pushes a frame for a cross-container operation. Bindings are
// set primary, source, dest; the release resets them in strict reverse
// order. Source and dest may be nil when one side is absent.
func (s *Stack) BindTransfer(primary, source, dest Binding) func() {
	s.Push()
	s.SetPrimary(primary)
	if source != nil {
		s.SetSource(source)
	}
	if dest != nil {
		s.SetDest(dest)
	}
	return func() {
		if dest != nil {
			s.ResetDest()
		}
		if source != nil {
			s.ResetSource()
		}
		s.ResetPrimary()
		s.Pop()
	}
}
