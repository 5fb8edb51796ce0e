// Package chat streams completions from a hosted chat model.
package chat

import "context"

// Delta is one streamed increment. Fragments are concatenated in order by consumers.
type Delta struct {
	Fragments []string
}

// Text concatenates the fragments.
func (d Delta) Text() string {
	switch len(d.Fragments) {
	case 0:
		return ""
	case 1:
		return d.Fragments[0]
	}
	n := 0
	for _, f := range d.Fragments {
		n += len(f)
	}
	b := make([]byte, 0, n)
	for _, f := range d.Fragments {
		b = append(b, f...)
	}
	return string(b)
}

// Streamer opens a completion stream grounded on systemContext and answering userPrompt.
// An error is returned only when the stream cannot start. The channel is closed when the
// model finishes, when the stream fails midway, or when ctx is cancelled.
type Streamer interface {
	StreamChat(ctx context.Context, systemContext, userPrompt string) (<-chan Delta, error)
}

// send delivers d unless ctx is cancelled first.
func send(ctx context.Context, ch chan<- Delta, d Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
