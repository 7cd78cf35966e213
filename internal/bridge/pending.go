package bridge

// Pending holds at most one in-flight caller request: where to deliver the
// result and the result drafted so far.
type Pending[T any] struct {
	reply chan<- T
	draft T
	valid bool
	gen   uint64
}

// Start stores a request. The reply channel must have room for one value.
// Callers must resolve or reset a valid slot before starting a new request.
func (p *Pending[T]) Start(reply chan<- T, draft T) {
	if p.valid {
		panic("bridge: pending request started while another is valid")
	}
	p.reply = reply
	p.draft = draft
	p.valid = true
	p.gen++
}

// Valid reports whether a request is waiting.
func (p *Pending[T]) Valid() bool {
	return p.valid
}

// Generation identifies the request stored by the last Start.
func (p *Pending[T]) Generation() uint64 {
	return p.gen
}

// Draft returns the result drafted so far.
func (p *Pending[T]) Draft() T {
	return p.draft
}

// Resolve finalizes the draft with fn, delivers it and invalidates the slot.
// It reports false if no request was waiting.
func (p *Pending[T]) Resolve(fn func(draft *T)) bool {
	if !p.valid {
		return false
	}
	if fn != nil {
		fn(&p.draft)
	}
	select {
	case p.reply <- p.draft:
	default:
	}
	p.Reset()
	return true
}

// Reset invalidates the slot without delivering anything.
func (p *Pending[T]) Reset() {
	var zero T
	p.reply = nil
	p.draft = zero
	p.valid = false
}
