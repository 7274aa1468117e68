package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/chunkstore"
	"exampaper-rag/internal/export"
	"exampaper-rag/internal/llm"
	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"
	"exampaper-rag/internal/parser"
	"exampaper-rag/internal/prompt"
	"exampaper-rag/internal/retriever"
	"exampaper-rag/internal/templates"
)

// DefaultQuery is used when a request carries no query of its own
const DefaultQuery = "key concepts, definitions and applications suitable for exam questions"

// errStopped means the job reached a terminal state under the worker,
// normally because it was cancelled.
var errStopped = errors.New("job stopped")

// TemplateSource resolves paper templates by id
type TemplateSource interface {
	Get(id string) (*templates.Template, error)
}

// ContentRetriever selects chunks for a request
type ContentRetriever interface {
	Retrieve(ctx context.Context, query string, weightings []models.SourceWeighting, budget int) (*retriever.Result, error)
}

// PromptBuilder renders the synthesis prompt
type PromptBuilder interface {
	Build(in prompt.Input) (*prompt.Prompt, error)
}

// Exporter writes a validated paper somewhere a client can fetch it
type Exporter interface {
	Export(ctx context.Context, in export.Input) (*models.ArtifactRef, error)
}

// Deps are the pipeline stages the controller drives
type Deps struct {
	Table     Table
	Documents chunkstore.DocumentSource
	Templates TemplateSource
	Retriever ContentRetriever
	Prompts   PromptBuilder
	Synth     llm.Synthesizer
	Parser    *parser.Parser
	Exporter  Exporter
	Log       *logger.Logger
}

// Options tune the controller
type Options struct {
	MaxConcurrent int
	DefaultBudget int
	Now           func() time.Time
}

// Controller accepts generation requests and runs each one through the
// pipeline on its own goroutine.
type Controller struct {
	*Admin
	Deps
	opts Options

	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewController validates deps and returns a ready controller
func NewController(deps Deps, opts Options) (*Controller, error) {
	switch {
	case deps.Table == nil:
		return nil, fmt.Errorf("job table is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("document source is required")
	case deps.Templates == nil:
		return nil, fmt.Errorf("template source is required")
	case deps.Retriever == nil, deps.Prompts == nil, deps.Synth == nil, deps.Exporter == nil:
		return nil, fmt.Errorf("retriever, prompt builder, synthesizer and exporter are required")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(deps.Log)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = 40
	}
	admin := NewAdmin(deps.Table, deps.Log)
	if opts.Now != nil {
		admin.now = opts.Now
	}
	return &Controller{
		Admin: admin,
		Deps:  deps,
		opts:  opts,
		sem:   make(chan struct{}, opts.MaxConcurrent),
	}, nil
}

// Submit validates params, records a pending job and schedules it. When a
// source document is not indexed the job is created and failed at once and
// its id is returned together with the DocumentNotReady error.
func (c *Controller) Submit(ctx context.Context, params models.JobParams) (string, error) {
	if err := c.normalize(&params); err != nil {
		return "", err
	}
	if _, err := c.Templates.Get(params.TemplateID); err != nil {
		return "", err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", apperr.Errorf(apperr.Internal, "controller is shut down")
	}

	now := c.now().UTC()
	job := &models.GenerationJob{
		ID:        uuid.NewString(),
		Status:    models.JobPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Table.Insert(ctx, job); err != nil {
		return "", fmt.Errorf("failed to record job: %w", err)
	}
	log := c.log.With("job_id", job.ID)

	if err := c.checkDocuments(ctx, params.Sources); err != nil {
		log.Warn("Rejecting job, source not ready", "error", err)
		c.fail(ctx, job.ID, err)
		return job.ID, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		err := apperr.Errorf(apperr.Internal, "controller is shut down")
		c.fail(ctx, job.ID, err)
		return job.ID, err
	}
	c.wg.Add(1)
	c.mu.Unlock()

	log.Info("Job submitted", "sources", len(params.Sources), "template", params.TemplateID, "budget", params.Budget)
	go c.run(job.ID)
	return job.ID, nil
}

func (c *Controller) normalize(p *models.JobParams) error {
	if len(p.Sources) == 0 {
		return apperr.Errorf(apperr.InvalidRequest, "at least one source document is required")
	}
	p.Sources = append([]models.SourceWeighting(nil), p.Sources...)
	seen := make(map[string]bool, len(p.Sources))
	total := 0
	for i := range p.Sources {
		s := &p.Sources[i]
		s.Difficulty = strings.ToLower(strings.TrimSpace(s.Difficulty))
		if !models.ValidDifficulty(s.Difficulty) {
			return apperr.Errorf(apperr.InvalidRequest, "difficulty %q for %s must be easy, medium or hard", s.Difficulty, s.DocumentID)
		}
		if s.DocumentID == "" {
			return apperr.Errorf(apperr.InvalidRequest, "source document id is required")
		}
		if seen[s.DocumentID] {
			return apperr.Errorf(apperr.InvalidRequest, "document %s is listed twice", s.DocumentID)
		}
		seen[s.DocumentID] = true
		if s.Weight < 0 || s.Weight > 100 {
			return apperr.Errorf(apperr.InvalidRequest, "weight %d for %s is outside [0,100]", s.Weight, s.DocumentID)
		}
		total += s.Weight
	}
	if total == 0 {
		return apperr.Errorf(apperr.InvalidRequest, "weights must not all be zero")
	}
	if p.TemplateID == "" {
		return apperr.Errorf(apperr.InvalidRequest, "template id is required")
	}
	if p.Budget < 0 {
		return apperr.Errorf(apperr.InvalidRequest, "budget must be positive")
	}
	if p.Budget == 0 {
		p.Budget = c.opts.DefaultBudget
	}
	if p.Query == "" {
		p.Query = DefaultQuery
	}
	return nil
}

func (c *Controller) checkDocuments(ctx context.Context, sources []models.SourceWeighting) error {
	for _, s := range sources {
		doc, err := c.Documents.GetDocument(ctx, s.DocumentID)
		if err != nil {
			if apperr.KindOf(err) == apperr.Internal {
				return fmt.Errorf("failed to look up document %s: %w", s.DocumentID, err)
			}
			return apperr.Errorf(apperr.DocumentNotReady, "document %s: %v", s.DocumentID, err)
		}
		if doc.Status != models.IngestionIndexed {
			return apperr.Errorf(apperr.DocumentNotReady, "document %s is %s", s.DocumentID, doc.Status)
		}
	}
	return nil
}

// Close refuses new jobs and waits for running ones to finish
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) run(id string) {
	defer c.wg.Done()
	ctx := context.Background()
	log := c.log.With("job_id", id)

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			c.fail(ctx, id, apperr.Errorf(apperr.Internal, "panic: %v", r))
		}
	}()

	start := time.Now()
	err := c.execute(ctx, id, log)
	switch {
	case errors.Is(err, errStopped):
		log.Info("Job stopped before completion")
	case err != nil:
		log.Error("Job failed", "kind", apperr.KindOf(err), "error", err)
		c.fail(ctx, id, err)
	default:
		log.Info("Job completed", "elapsed", time.Since(start).String())
	}
}

func (c *Controller) execute(ctx context.Context, id string, log *logger.Logger) error {
	job, err := c.Table.Get(ctx, id)
	if err != nil {
		return err
	}
	p := job.Params
	tpl, err := c.Templates.Get(p.TemplateID)
	if err != nil {
		return err
	}

	if err := c.advance(ctx, id, models.JobRetrieving); err != nil {
		return err
	}
	res, err := c.Retriever.Retrieve(ctx, p.Query, p.Sources, p.Budget)
	if err != nil {
		return err
	}
	log.Info("Retrieved content", "chunks", res.Total)

	if err := c.advance(ctx, id, models.JobSynthesizing); err != nil {
		return err
	}
	pr, err := c.Prompts.Build(prompt.Input{
		Template:     tpl,
		Weightings:   p.Sources,
		Retrieved:    res.Chunks,
		Instructions: p.Instructions,
	})
	if err != nil {
		return err
	}
	raw, err := c.Synth.Generate(ctx, pr.Text)
	if err != nil {
		return err
	}

	if err := c.advance(ctx, id, models.JobParsing); err != nil {
		return err
	}
	questions, err := c.Parser.Parse(raw, tpl.Slots, tpl.MarksPerSlot)
	if err != nil {
		return err
	}
	for i := range questions {
		if i < len(pr.SlotSources) {
			questions[i].DocumentID = pr.SlotSources[i]
		}
	}

	if err := c.advance(ctx, id, models.JobFilling); err != nil {
		return err
	}
	artifact, err := templates.Fill(tpl, questions, c.fields(tpl, job))
	if err != nil {
		return apperr.New(apperr.Internal, err)
	}

	if err := c.advance(ctx, id, models.JobValidating); err != nil {
		return err
	}
	if violations := templates.Validate(artifact, tpl); len(violations) > 0 {
		log.Warn("Paper failed structural validation", "violations", violations)
		return apperr.Validation(violations)
	}

	retrieved := make(map[string]int, len(res.Chunks))
	for doc, chunks := range res.Chunks {
		retrieved[doc] = len(chunks)
	}
	ref, err := c.Exporter.Export(ctx, export.Input{
		JobID:      id,
		TemplateID: tpl.ID,
		Artifact:   artifact,
		TotalMarks: tpl.TotalMarks,
		Questions:  questions,
		Sources:    p.Sources,
		Retrieved:  retrieved,
	})
	if err != nil {
		return apperr.New(apperr.ExportFailed, err)
	}

	_, err = c.Table.Update(ctx, id, func(j *models.GenerationJob) error {
		if j.Status.Terminal() {
			return errStopped
		}
		if !j.Status.CanAdvanceTo(models.JobCompleted) {
			return fmt.Errorf("job %s cannot complete from %s", id, j.Status)
		}
		j.Status = models.JobCompleted
		j.Artifact = ref
		j.UpdatedAt = c.now().UTC()
		return nil
	})
	return err
}

// fields supplies values for the template's non-question placeholders
func (c *Controller) fields(tpl *templates.Template, job *models.GenerationJob) map[string]string {
	values := map[string]string{
		"paper_code": templates.PaperCode(job.ID, job.CreatedAt),
		"job_id":     job.ID,
		"date":       job.CreatedAt.Format("02/01/2006"),
	}
	out := make(map[string]string, len(tpl.Fields))
	for _, f := range tpl.Fields {
		if v, ok := values[f]; ok {
			out[f] = v
		}
	}
	return out
}

// advance moves the job one step forward. A job that became terminal in the
// meantime yields errStopped.
func (c *Controller) advance(ctx context.Context, id string, next models.JobStatus) error {
	_, err := c.Table.Update(ctx, id, func(j *models.GenerationJob) error {
		if j.Status.Terminal() {
			return errStopped
		}
		if !j.Status.CanAdvanceTo(next) {
			return apperr.Errorf(apperr.Internal, "illegal transition %s -> %s", j.Status, next)
		}
		j.Status = next
		j.UpdatedAt = c.now().UTC()
		return nil
	})
	return err
}

// fail records err on the job unless it is already terminal
func (c *Controller) fail(ctx context.Context, id string, err error) {
	_, uerr := c.Table.Update(ctx, id, func(j *models.GenerationJob) error {
		if j.Status.Terminal() {
			return errNoChange
		}
		j.Error = &models.JobError{
			Kind:       string(apperr.KindOf(err)),
			Stage:      j.Status,
			Message:    err.Error(),
			Violations: apperr.ViolationsOf(err),
		}
		j.Status = models.JobFailed
		j.UpdatedAt = c.now().UTC()
		return nil
	})
	if uerr != nil && !errors.Is(uerr, errNoChange) {
		c.log.Error("Failed to record job failure", "job_id", id, "error", uerr)
	}
}
