package defaultsearchstrategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/metrics"
	"search-courier/internal/common/validation"
)

const (
	TaskType = "default-search-strategy"
)

// Searcher runs one search to completion.
type Searcher interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config       *Config
	searcher     Searcher
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, searcher Searcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		searcher:     searcher,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

// parseInput validates the job variables before decoding them.
func (h *Handler) parseInput(variables string) (*Input, error) {
	result, err := validation.ValidateSearchInputJSON([]byte(variables))
	if err != nil {
		return nil, errors.NewInvalidSearchInputError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidSearchInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidSearchInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidSearchInputError("input cannot be nil")
	}
	return h.searcher.Execute(ctx, input)
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.WithoutCancel(ctx), client, job, stdErr)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	// the search may have used up the job timeout
	if _, err := cmd.Send(context.WithoutCancel(ctx)); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":       job.Key,
		"invocationId": output.InvocationID,
		"route":        output.Route,
		"responses":    len(output.Responses),
	})
}

// Execute runs the search for already-decoded input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// ParseInput exposes job variable validation.
func (h *Handler) ParseInput(variables string) (*Input, error) {
	return h.parseInput(variables)
}
