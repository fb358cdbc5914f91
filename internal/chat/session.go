package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/types"
)

// Session holds the chat view of one consumer. Each Load supersedes the
// previous one: its in-flight resolution is cancelled and its result, if it
// still arrives, is discarded.
type Session struct {
	builder *Builder
	log     *zap.Logger

	mu      sync.Mutex
	gen     uint64
	digest  string
	loaded  bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	current *Chat
	err     error
}

// NewSession creates an empty session backed by b.
func NewSession(b *Builder) *Session {
	return &Session{builder: b, log: b.log}
}

// Load starts deriving the chat for call. Until it completes Current reports
// a loading chat. Loading the same call content again is a no-op.
func (s *Session) Load(ctx context.Context, call *types.Call) {
	digest := call.Digest()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.loaded && digest == s.digest) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.digest = digest
	s.loaded = true
	s.current = &Chat{Loading: true}
	s.err = nil

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		chat, err := s.builder.Build(ctx, call)
		s.apply(gen, chat, err)
	}()
}

func (s *Session) apply(gen uint64, chat *Chat, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		s.log.Debug("chat.stale_result_dropped", zap.Uint64("generation", gen), zap.Uint64("current", s.gen))
		return
	}
	s.cancel = nil
	s.current = chat
	s.err = err
}

// Current returns the latest chat, or nil before the first Load.
func (s *Session) Current() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Wait blocks until the most recent Load has completed and returns its chat
// and resolution error.
func (s *Session) Wait(ctx context.Context) (*Chat, error) {
	for {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		if done == nil {
			break
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		settled := s.done == done
		s.mu.Unlock()
		if settled {
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.err
}

// Close cancels outstanding work. Later Loads are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
