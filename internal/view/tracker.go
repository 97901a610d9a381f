package view

import (
	"context"
	"sync"
)

// Token identifies one request started through a Tracker.
type Token struct {
	key string
	seq uint64
}

type entry struct {
	seq    uint64
	cancel context.CancelFunc
}

// Tracker keeps the latest request per key. Beginning a request cancels the
// previous one for the same key.
type Tracker struct {
	mu   sync.Mutex
	seq  uint64
	live map[string]entry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{live: make(map[string]entry)}
}

// Begin starts a request for key. The returned context is cancelled when a
// newer request for key begins or when done is called.
func (t *Tracker) Begin(ctx context.Context, key string) (context.Context, Token, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.seq++
	tok := Token{key: key, seq: t.seq}
	if prev, ok := t.live[key]; ok {
		prev.cancel()
	}
	t.live[key] = entry{seq: tok.seq, cancel: cancel}
	t.mu.Unlock()

	done := func() {
		cancel()
		t.mu.Lock()
		defer t.mu.Unlock()
		if e, ok := t.live[key]; ok && e.seq == tok.seq {
			delete(t.live, key)
		}
	}
	return ctx, tok, done
}

// Current reports whether tok is still the latest request for its key.
func (t *Tracker) Current(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.live[tok.key]
	return ok && e.seq == tok.seq
}

// Cancel aborts the in-flight request for key, if any.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.live[key]; ok {
		e.cancel()
		delete(t.live, key)
	}
}

// Len is the number of in-flight requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
