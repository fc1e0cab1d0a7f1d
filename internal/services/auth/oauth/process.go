package oauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// handoff carries at most one token from the callback to the waiting process.
// Closing ch without a value tells the receiver the sender was dropped.
type handoff struct {
	ch chan *oauth2.Token

	mu           sync.Mutex
	finished     bool
	receiverGone bool
}

func newHandoff() *handoff {
	return &handoff{ch: make(chan *oauth2.Token, 1)}
}

// send delivers token without blocking. Only the first send or drop wins.
func (h *handoff) send(token *oauth2.Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return ErrAlreadyDelivered
	}
	h.finished = true
	if h.receiverGone {
		close(h.ch)
		return ErrReceiverGone
	}
	h.ch <- token
	close(h.ch)
	return nil
}

// drop closes the handoff without a value. It reports whether this call
// finished the handoff.
func (h *handoff) drop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return false
	}
	h.finished = true
	close(h.ch)
	return true
}

// release marks the receiver as gone so later sends fail fast.
func (h *handoff) release() {
	h.mu.Lock()
	h.receiverGone = true
	h.mu.Unlock()
}

// AuthProcess is the waiting side of one authentication attempt.
type AuthProcess struct {
	state    string
	deadline time.Time
	handoff  *handoff
	clock    func() time.Time

	mu       sync.Mutex
	consumed bool
}

// State returns the CSRF state this process waits on.
func (p *AuthProcess) State() string {
	return p.state
}

// Deadline returns the instant after which Wait reports ErrTimeout.
func (p *AuthProcess) Deadline() time.Time {
	return p.deadline
}

// Wait blocks until the callback delivers a token, the deadline passes, the
// pending entry is dropped, or ctx is done. The deadline is checked before and
// after every receive, so a token observed past the deadline is discarded in
// favour of ErrTimeout. Wait may be called once; later calls return
// ErrProcessConsumed.
func (p *AuthProcess) Wait(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	if p.consumed {
		p.mu.Unlock()
		return nil, ErrProcessConsumed
	}
	p.consumed = true
	p.mu.Unlock()
	defer p.handoff.release()

	if ctx == nil {
		ctx = context.Background()
	}
	for {
		now := p.clock()
		if now.After(p.deadline) {
			return nil, ErrTimeout
		}
		timer := time.NewTimer(p.deadline.Sub(now))
		select {
		case token, ok := <-p.handoff.ch:
			timer.Stop()
			if p.clock().After(p.deadline) {
				return nil, ErrTimeout
			}
			if !ok {
				return nil, ErrSenderDropped
			}
			return token, nil
		case <-timer.C:
			// Loop back to the clock check; the timer and clock may disagree
			// by a few nanoseconds at the boundary.
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
