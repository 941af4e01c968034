package courier

import (
	"context"
	stderrors "errors"
	"sync"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/metrics"
	"search-courier/internal/models"
)

// StaticRequest is a SearchRequest whose fetch params arrived over the wire.
type StaticRequest struct {
	params models.FetchParams

	mu      sync.Mutex
	failure error
}

func NewStaticRequest(params models.FetchParams) *StaticRequest {
	return &StaticRequest{params: params}
}

func (r *StaticRequest) GetFetchParams(context.Context) (*models.FetchParams, error) {
	p := r.params
	return &p, nil
}

func (r *StaticRequest) HandleFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = err
}

// Failure returns the error passed to HandleFailure, if any.
func (r *StaticRequest) Failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// ExecutorDefaults fill in backend knobs the caller left unset.
type ExecutorDefaults struct {
	IncludeFrozen              bool
	MaxConcurrentShardRequests int
}

// Executor runs a transport-level search to completion: it picks a
// strategy, dispatches, waits and shapes the reply.
type Executor struct {
	registry *Registry
	defaults ExecutorDefaults
	logger   logger.Logger
}

func NewExecutor(registry *Registry, defaults ExecutorDefaults, log logger.Logger) *Executor {
	return &Executor{
		registry: registry,
		defaults: defaults,
		logger:   log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Execute blocks until the search settles or ctx ends. Errors are
// StandardError or SearchError values.
func (e *Executor) Execute(ctx context.Context, input *models.SearchInput) (*models.SearchOutput, error) {
	if input == nil {
		return nil, errors.NewInvalidSearchInputError("input cannot be nil")
	}

	strategy, err := e.registry.Select(leadPattern(input.Requests))
	if err != nil {
		return nil, err
	}

	reqs := make([]models.SearchRequest, len(input.Requests))
	for i, p := range input.Requests {
		reqs[i] = NewStaticRequest(p)
	}

	maxShards := input.MaxConcurrentShardRequests
	if maxShards == 0 {
		maxShards = e.defaults.MaxConcurrentShardRequests
	}

	result, err := strategy.Search(ctx, SearchParams{
		Requests:                   reqs,
		IncludeFrozen:              input.IncludeFrozen || e.defaults.IncludeFrozen,
		MaxConcurrentShardRequests: maxShards,
		Routing:                    RoutingContext{Discover: input.Discover, Hostname: input.Hostname},
	})
	if err != nil {
		return nil, err
	}

	responses, err := result.Searching.Wait(ctx)
	if err != nil {
		result.Searching.Abort()
		return nil, waitError(ctx, err)
	}

	output := &models.SearchOutput{
		InvocationID:   result.InvocationID,
		Route:          result.Searching.Route(),
		Responses:      responses,
		FailedRequests: make([]models.FailedRequest, len(result.FailedIndexes)),
	}
	if result.Searching == nil {
		output.Route = metrics.RouteShortCircuited
	}
	if output.Responses == nil {
		output.Responses = []models.Response{}
	}
	for i, idx := range result.FailedIndexes {
		output.FailedRequests[i] = models.FailedRequest{Index: idx, Error: result.FailureErrors[i].Error()}
	}

	e.logger.Debug("search settled", map[string]interface{}{
		"invocationId": output.InvocationID,
		"route":        output.Route,
		"responses":    len(output.Responses),
		"failed":       len(output.FailedRequests),
	})

	return output, nil
}

// waitError prefers the caller's context state over the backend error it
// caused.
func waitError(ctx context.Context, err error) error {
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.NewSearchTimeoutError(err.Error())
	case stderrors.Is(err, ErrAborted), stderrors.Is(ctx.Err(), context.Canceled):
		return errors.NewSearchAbortedError()
	}
	return err
}

// leadPattern picks the index pattern used for strategy selection. An
// empty batch goes to the default strategy.
func leadPattern(params []models.FetchParams) *models.IndexPattern {
	if len(params) == 0 {
		return &models.IndexPattern{}
	}
	p := params[0].Index
	return &p
}
