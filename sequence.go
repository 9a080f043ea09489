package command

import (
	"sync"
)

const (
	// ReservedIDs is the block of ids kept for manual and testing commands.
	ReservedIDs uint32 = 9000
	// MaxID is the largest id accepted on the wire.
	MaxID uint32 = 1<<31 - 1
)

// Sequence generates request ids. Ids increase by one from ReservedIDs+1 and
// wrap back to the first non reserved id after MaxID.
type Sequence struct {
	mu   sync.Mutex
	last uint32
	skip func(id uint32) bool
}

// SequenceOption configures a Sequence.
type SequenceOption func(*Sequence)

// WithStart makes the next generated id equal to start+1.
func WithStart(last uint32) SequenceOption {
	return func(s *Sequence) {
		s.last = last
	}
}

// SkipIf makes the sequence skip ids for which inUse returns true, so an id
// still pending is never handed out twice.
func SkipIf(inUse func(id uint32) bool) SequenceOption {
	return func(s *Sequence) {
		s.skip = inUse
	}
}

func NewSequence(opts ...SequenceOption) *Sequence {
	s := &Sequence{last: ReservedIDs}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Next returns the next free id.
func (s *Sequence) Next() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempts := uint32(0); attempts < MaxID; attempts++ {
		if s.last >= MaxID {
			s.last = ReservedIDs
		}
		s.last++
		if s.skip == nil || !s.skip(s.last) {
			return s.last
		}
	}
	panic(NewSequenceExhaustedError())
}

// Last returns the most recently generated id.
func (s *Sequence) Last() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
