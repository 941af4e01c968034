// Package courier implements the default search strategy: it resolves a
// batch of search requests, serializes them into one multi-search payload,
// sends it to Elasticsearch and, for old enough time ranges, to the
// archival query proxy, then returns one backend's result or both merged.
package courier

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"search-courier/internal/audit"
	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/metrics"
	"search-courier/internal/common/observability"
	"search-courier/internal/models"
)

const DefaultStrategyID = "default"

// Strategy is a pluggable search implementation.
type Strategy interface {
	ID() string
	IsViable(indexPattern *models.IndexPattern) bool
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
}

// Primary is the always-queried backend.
type Primary interface {
	Msearch(ctx context.Context, payload string, opts MsearchOptions) ([]models.Response, error)
}

// Secondary is the archival backend.
type Secondary interface {
	Query(ctx context.Context, payload string) ([]models.Response, error)
}

// LoadingIndicator persists whether a search is in flight.
type LoadingIndicator interface {
	SetLoading(ctx context.Context, loading bool) error
}

// AuditSink records finished searches.
type AuditSink interface {
	Write(ctx context.Context, rec *audit.Record) error
}

// SearchParams is one search invocation.
type SearchParams struct {
	Requests []models.SearchRequest
	// Serializer defaults to MsearchSerializer.
	Serializer                 Serializer
	IncludeFrozen              bool
	MaxConcurrentShardRequests int
	Routing                    RoutingContext
}

// SearchResult is returned as soon as the payload has been dispatched.
// Searching is nil when nothing was dispatched.
type SearchResult struct {
	InvocationID         string
	Decision             models.RoutingDecision
	Searching            *Searching
	FailedSearchRequests []models.SearchRequest
	FailedIndexes        []int
	FailureErrors        []error
}

// Dependencies wires a DefaultStrategy. Secondary, Loading, Audit and
// Observability are optional.
type Dependencies struct {
	Primary       Primary
	Secondary     Secondary
	Decider       *RoutingDecider
	Loading       LoadingIndicator
	Audit         AuditSink
	Observability *observability.Observability
	Logger        logger.Logger
	Now           func() time.Time
}

// DefaultStrategy serves default-type index patterns.
type DefaultStrategy struct {
	primary   Primary
	secondary Secondary
	decider   *RoutingDecider
	loading   LoadingIndicator
	audit     AuditSink
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewDefaultStrategy(deps Dependencies) *DefaultStrategy {
	if deps.Decider == nil {
		deps.Decider = NewRoutingDecider(DefaultThresholdDays, nil)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &DefaultStrategy{
		primary:   deps.Primary,
		secondary: deps.Secondary,
		decider:   deps.Decider,
		loading:   deps.Loading,
		audit:     deps.Audit,
		obs:       deps.Observability,
		logger:    deps.Logger.WithFields(map[string]interface{}{"strategy": DefaultStrategyID}),
		now:       deps.Now,
	}
}

func (s *DefaultStrategy) ID() string {
	return DefaultStrategyID
}

// IsViable accepts only non-nil default-type index patterns.
func (s *DefaultStrategy) IsViable(indexPattern *models.IndexPattern) bool {
	return indexPattern.IsDefault()
}

// Search resolves, routes, serializes and dispatches the batch. Request
// failures are reported in the result, never as an error; the returned
// error is only for a failing serializer.
func (s *DefaultStrategy) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	invocationID := uuid.New()
	log := s.logger.WithFields(map[string]interface{}{"invocationId": invocationID.String()})

	resolution := ResolveFetchParams(ctx, params.Requests)
	if n := len(resolution.Failed); n > 0 {
		metrics.CourierFetchParamFailures.Add(float64(n))
		log.Warn("fetch params failed", map[string]interface{}{
			"failed":   n,
			"requests": len(params.Requests),
			"indexes":  resolution.FailedIndexes,
		})
	}

	decision := s.decider.Decide(resolution.Params, params.Routing, s.now())

	serialize := params.Serializer
	if serialize == nil {
		serialize = MsearchSerializer
	}
	payload, err := serialize(ctx, resolution.Params)
	if err != nil {
		log.Error("serialization failed", map[string]interface{}{"error": err})
		return nil, errors.NewSerializationFailedError(err)
	}

	result := &SearchResult{
		InvocationID:         invocationID.String(),
		Decision:             decision,
		FailedSearchRequests: resolution.Failed,
		FailedIndexes:        resolution.FailedIndexes,
		FailureErrors:        resolution.FailureErrors,
	}

	rec := &audit.Record{
		ID:            invocationID,
		IndexPatterns: indexTitles(resolution.Params),
		RequestCount:  len(params.Requests),
		FailedCount:   len(resolution.Failed),
	}

	if strings.TrimSpace(payload) == "" {
		log.Info("nothing to dispatch", map[string]interface{}{"failed": len(resolution.Failed)})
		metrics.CourierSearches.WithLabelValues(metrics.RouteShortCircuited, "ok").Inc()
		rec.Route = metrics.RouteShortCircuited
		s.writeAudit(ctx, rec, log)
		return result, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	searching := newSearching(cancel)
	result.Searching = searching

	opts := MsearchOptions{
		IncludeFrozen:              params.IncludeFrozen,
		MaxConcurrentShardRequests: params.MaxConcurrentShardRequests,
	}

	log.Debug("dispatching search", map[string]interface{}{
		"querySecondary": decision.QuerySecondary,
		"merge":          decision.Merge,
		"requests":       len(resolution.Params),
	})

	go s.run(runCtx, searching, payload, decision, opts, rec, log)

	return result, nil
}

type outcome struct {
	responses []models.Response
	route     string
	err       error
}

func (s *DefaultStrategy) run(ctx context.Context, sr *Searching, payload string, decision models.RoutingDecision, opts MsearchOptions, rec *audit.Record, log logger.Logger) {
	defer sr.cancel()

	start := time.Now()
	ctx, span := s.obs.StartSpan(ctx, "courier.search",
		attribute.String("route.decided", decision.Route()),
		attribute.Int("requests", rec.RequestCount-rec.FailedCount),
	)
	defer span.End()

	s.setLoading(ctx, true, log)

	res := s.dispatch(ctx, payload, decision, opts, rec, log)

	status := "ok"
	switch {
	case stderrors.Is(res.err, ErrAborted):
		status = "aborted"
		rec.ErrorCode = string(errors.ErrCodeSearchAborted)
		span.SetStatus(codes.Error, "aborted")
	case res.err != nil:
		status = "error"
		rec.ErrorCode = string(errors.ErrCodeSearchQueryFailed)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}

	route := res.route
	if route == "" {
		route = metrics.RoutePrimary
	}
	elapsed := time.Since(start)
	metrics.CourierSearches.WithLabelValues(route, status).Inc()
	metrics.CourierSearchDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	s.obs.RecordSearch(ctx, route, status, elapsed)

	// The indicator is reset before settling so waiters observe it cleared.
	s.setLoading(context.WithoutCancel(ctx), false, log)
	sr.settle(res.responses, res.route, res.err)

	rec.Route = route
	rec.ResponseCount = len(res.responses)
	rec.Duration = elapsed
	s.writeAudit(context.WithoutCancel(ctx), rec, log)
}

func (s *DefaultStrategy) dispatch(ctx context.Context, payload string, decision models.RoutingDecision, opts MsearchOptions, rec *audit.Record, log logger.Logger) outcome {
	querySecondary := decision.QuerySecondary && s.secondary != nil

	var (
		wg            sync.WaitGroup
		secondaryResp []models.Response
		secondaryErr  error
	)
	secondaryCtx, cancelSecondary := context.WithCancel(ctx)
	defer cancelSecondary()

	if querySecondary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			secondaryResp, secondaryErr = s.secondary.Query(secondaryCtx, payload)
		}()
	}

	primaryResp, primaryErr := s.primary.Msearch(ctx, payload, opts)
	if primaryErr != nil {
		cancelSecondary()
	}
	wg.Wait()

	if stderrors.Is(ctx.Err(), context.Canceled) {
		log.Info("search aborted", nil)
		return outcome{err: ErrAborted}
	}

	if primaryErr != nil {
		searchErr := errors.NewSearchError(primaryErr)
		log.Error("primary search failed", map[string]interface{}{
			"status": searchErr.Status,
			"title":  searchErr.Title,
			"error":  searchErr.Message,
		})
		return outcome{err: searchErr}
	}

	if !querySecondary {
		return outcome{responses: primaryResp, route: metrics.RoutePrimary}
	}

	fallback := func(reason string, err error) outcome {
		metrics.CourierSecondaryFallbacks.WithLabelValues(reason).Inc()
		rec.SecondaryError = err.Error()
		log.Warn("secondary search failed, serving primary only", map[string]interface{}{
			"reason": reason,
			"error":  errors.NewSecondaryUnavailableError(err).Details,
		})
		return outcome{responses: primaryResp, route: metrics.RoutePrimary}
	}

	if secondaryErr != nil {
		return fallback("unavailable", secondaryErr)
	}
	if len(secondaryResp) == 0 {
		return fallback("empty_response", stderrors.New("secondary returned no responses"))
	}

	merged, err := MergeResponses(primaryResp, secondaryResp, decision)
	if err != nil {
		return fallback("merge_failed", err)
	}
	return outcome{responses: merged, route: decision.Route()}
}

func (s *DefaultStrategy) setLoading(ctx context.Context, loading bool, log logger.Logger) {
	if s.loading == nil {
		return
	}
	if err := s.loading.SetLoading(ctx, loading); err != nil {
		log.Warn("failed to set loading flag", map[string]interface{}{
			"loading": loading,
			"error":   err,
		})
	}
}

func (s *DefaultStrategy) writeAudit(ctx context.Context, rec *audit.Record, log logger.Logger) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.audit.Write(ctx, rec); err != nil {
		log.Warn("audit write failed", map[string]interface{}{"error": err})
	}
}

func indexTitles(params []models.FetchParams) string {
	titles := make([]string, 0, len(params))
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, ok := seen[p.Index.Title]; ok {
			continue
		}
		seen[p.Index.Title] = struct{}{}
		titles = append(titles, p.Index.Title)
	}
	return strings.Join(titles, ",")
}
