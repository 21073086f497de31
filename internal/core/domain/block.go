package domain

import "fmt"

// BlockRange bounds a log scan. A nil From means "the last window blocks"
// and a nil To means "the chain head at scan start".
type BlockRange struct {
	From *uint64
	To   *uint64
}

// Latest scans the default window ending at the chain head.
func Latest() BlockRange {
	return BlockRange{}
}

// Since scans from an explicit lower bound (e.g. a deployment block) to the head.
func Since(from uint64) BlockRange {
	return BlockRange{From: &from}
}

// Between scans a fully concrete range.
func Between(from, to uint64) BlockRange {
	return BlockRange{From: &from, To: &to}
}

// Span is a concrete, inclusive block interval.
type Span struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the span.
func (s Span) Len() uint64 {
	if s.To < s.From {
		return 0
	}
	return s.To - s.From + 1
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.From, s.To)
}

// Resolve turns the range into a concrete span against the given head.
// The lower bound defaults to max(0, head-window).
func (r BlockRange) Resolve(head, window uint64) (Span, error) {
	to := head
	if r.To != nil {
		to = *r.To
	}

	var from uint64
	switch {
	case r.From != nil:
		from = *r.From
	case to > window:
		from = to - window
	}

	if from > to {
		return Span{}, fmt.Errorf("invalid block range: from %d > to %d", from, to)
	}
	return Span{From: from, To: to}, nil
}
