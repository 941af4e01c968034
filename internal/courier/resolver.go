package courier

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"search-courier/internal/models"
)

var (
	ErrNilFetchParams   = stderrors.New("courier: request resolved to nil fetch params")
	ErrFetchParamsPanic = stderrors.New("courier: fetch params panicked")
)

type fetchResult struct {
	params *models.FetchParams
	err    error
}

// Resolution is the joined outcome of resolving a batch. Params keeps the
// input order of the successful requests; Failed keeps the input order of
// the rest, with FailedIndexes and FailureErrors aligned to it.
type Resolution struct {
	Params        []models.FetchParams
	Failed        []models.SearchRequest
	FailedIndexes []int
	FailureErrors []error
}

// ResolveFetchParams resolves every request concurrently. A failing request
// never cancels the others; it is told about its failure through
// HandleFailure once the whole batch has settled.
func ResolveFetchParams(ctx context.Context, requests []models.SearchRequest) Resolution {
	results := make([]fetchResult, len(requests))

	var g errgroup.Group
	for i, req := range requests {
		g.Go(func() error {
			results[i] = resolveOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var res Resolution
	for i, r := range results {
		if r.err != nil {
			requests[i].HandleFailure(r.err)
			res.Failed = append(res.Failed, requests[i])
			res.FailedIndexes = append(res.FailedIndexes, i)
			res.FailureErrors = append(res.FailureErrors, r.err)
			continue
		}
		if setter, ok := requests[i].(models.FetchParamsSetter); ok {
			setter.SetFetchParams(r.params)
		}
		res.Params = append(res.Params, *r.params)
	}
	return res
}

func resolveOne(ctx context.Context, req models.SearchRequest) (res fetchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = fetchResult{err: fmt.Errorf("%w: %v", ErrFetchParamsPanic, r)}
		}
	}()

	params, err := req.GetFetchParams(ctx)
	if err != nil {
		return fetchResult{err: err}
	}
	if params == nil {
		return fetchResult{err: ErrNilFetchParams}
	}
	return fetchResult{params: params}
}
