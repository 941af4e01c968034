package courier

import (
	"context"
	stderrors "errors"
	"sync"

	"search-courier/internal/models"
)

// ErrAborted settles a search that was canceled before it completed.
var ErrAborted = stderrors.New("courier: search aborted")

var settledChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Searching is the awaitable, cancelable result of one dispatched search.
// A nil *Searching stands for a search that dispatched nothing and
// resolves immediately with no responses.
type Searching struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	responses []models.Response
	route     string
	err       error
}

func newSearching(cancel context.CancelFunc) *Searching {
	return &Searching{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (s *Searching) settle(responses []models.Response, route string, err error) {
	s.once.Do(func() {
		s.responses = responses
		s.route = route
		s.err = err
		close(s.done)
	})
}

// Wait blocks until the search settles or ctx ends. Giving up on ctx does
// not abort the search.
func (s *Searching) Wait(ctx context.Context) ([]models.Response, error) {
	if s == nil {
		return nil, nil
	}
	select {
	case <-s.done:
		return s.responses, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Abort cancels the in-flight backend requests. The search settles with
// ErrAborted unless it had already settled.
func (s *Searching) Abort() {
	if s == nil {
		return
	}
	s.cancel()
}

// Done is closed once the search has settled.
func (s *Searching) Done() <-chan struct{} {
	if s == nil {
		return settledChan
	}
	return s.done
}

// Route reports which backends produced the settled result: primary,
// secondary or merged. It is empty until the search settles successfully.
func (s *Searching) Route() string {
	if s == nil {
		return ""
	}
	select {
	case <-s.done:
		return s.route
	default:
		return ""
	}
}
