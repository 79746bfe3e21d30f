package parallel

import "sync"

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}

// Span is a half open index range [From, To).
type Span struct {
	From, To int
}

// Len is the number of indices in the span.
func (s Span) Len() int {
	return s.To - s.From
}

// Chunks splits [0, length) into at most parts contiguous non-empty spans of near equal size.
func Chunks(length, parts int) []Span {
	if length <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if parts > length {
		parts = length
	}
	out := make([]Span, 0, parts)
	base, extra := length/parts, length%parts
	from := 0
	for p := 0; p < parts; p++ {
		size := base
		if p < extra {
			size++
		}
		out = append(out, Span{From: from, To: from + size})
		from += size
	}
	return out
}

// ForEachChunk runs body once per chunk of [0, length), at most limit chunks in parallel.
// The chunk index is passed along so callers can keep per-chunk buffers.
func ForEachChunk(length, limit int, body func(chunk int, s Span)) {
	spans := Chunks(length, limit)
	ForEach(len(spans), limit, func(i int) {
		body(i, spans[i])
	})
}
