package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/jobs"
	"exampaper-rag/internal/models"
)

// generateRequest is the YAML form of a generation request
type generateRequest struct {
	Template     string                   `yaml:"template"`
	Query        string                   `yaml:"query"`
	Instructions string                   `yaml:"instructions"`
	Budget       int                      `yaml:"budget"`
	Sources      []models.SourceWeighting `yaml:"sources"`
}

var (
	genRequestFile  string
	genSources      []string
	genFocus        []string
	genDifficulty   []string
	genTemplate     string
	genQuery        string
	genInstructions string
	genBudget       int
	genTimeout      time.Duration
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an exam paper",
	Long: `Submits a generation job and waits for it to finish. Sources are given as
--source <doc-id>=<weight> (repeatable) or in a YAML request file. Interrupting
the command cancels the job if it has not started parsing yet.`,
	Example: `  papergen generate -s 1f0c...=40 -s 77ab...=35 -s 9e21...=25 --focus 1f0c...=osmosis,diffusion
  papergen generate -r request.yaml`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genRequestFile, "request", "r", "", "YAML file with the request")
	f.StringArrayVarP(&genSources, "source", "s", nil, "Source as <doc-id>=<weight>")
	f.StringArrayVar(&genFocus, "focus", nil, "Focus topics as <doc-id>=<topic>,<topic>")
	f.StringArrayVar(&genDifficulty, "difficulty", nil, "Difficulty as <doc-id>=<level>")
	f.StringVar(&genTemplate, "template", "sample-80", "Template id")
	f.StringVarP(&genQuery, "query", "q", "", "Global retrieval query")
	f.StringVar(&genInstructions, "instructions", "", "Special instructions for the question writer")
	f.IntVar(&genBudget, "budget", 0, "Number of chunks to retrieve (default from config)")
	f.DurationVar(&genTimeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	params, err := buildParams(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	table, release, err := openTable(ctx)
	if err != nil {
		return err
	}
	defer release()

	ctl, err := newController(db, table)
	if err != nil {
		return err
	}
	defer ctl.Close()

	id, err := ctl.Submit(ctx, params)
	if err != nil {
		if id != "" {
			cmd.Printf("Job %s failed\n", id)
		}
		return err
	}
	cmd.Printf("Job %s submitted\n", id)

	waitCtx := ctx
	if genTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, genTimeout)
		defer cancel()
	}
	job, err := follow(waitCtx, cmd, ctl, id)
	if err != nil {
		// interrupted: try to cancel, then let the worker settle
		if _, cerr := ctl.Cancel(context.WithoutCancel(ctx), id); cerr != nil {
			cmd.Printf("Could not cancel job %s: %v\n", id, cerr)
		}
		ctl.Close()
		if job, err = ctl.Status(context.WithoutCancel(ctx), id); err != nil {
			return err
		}
	}

	printJob(cmd, job)
	if job.Status != models.JobCompleted {
		return fmt.Errorf("job %s did not complete", id)
	}
	return nil
}

// follow polls the job, printing each status change, until it is terminal
func follow(ctx context.Context, cmd *cobra.Command, ctl *jobs.Controller, id string) (*models.GenerationJob, error) {
	ticker := time.NewTicker(cfg.Jobs.PollInterval)
	defer ticker.Stop()

	var last models.JobStatus
	for {
		job, err := ctl.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status != last {
			cmd.Printf("  %s\n", job.Status)
			last = job.Status
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildParams merges the request file with command line flags
func buildParams(cmd *cobra.Command) (models.JobParams, error) {
	var req generateRequest
	if genRequestFile != "" {
		data, err := os.ReadFile(genRequestFile)
		if err != nil {
			return models.JobParams{}, fmt.Errorf("failed to read request: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return models.JobParams{}, fmt.Errorf("failed to parse request %s: %w", genRequestFile, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("template") || req.Template == "" {
		req.Template = genTemplate
	}
	if flags.Changed("query") {
		req.Query = genQuery
	}
	if flags.Changed("instructions") {
		req.Instructions = genInstructions
	}
	if flags.Changed("budget") {
		req.Budget = genBudget
	}

	sources, err := parseSources(genSources, genFocus, genDifficulty)
	if err != nil {
		return models.JobParams{}, err
	}
	if len(sources) > 0 {
		req.Sources = sources
	}
	if len(req.Sources) == 0 {
		return models.JobParams{}, apperr.Errorf(apperr.InvalidRequest, "at least one --source or a request file is required")
	}

	return models.JobParams{
		Sources:      req.Sources,
		TemplateID:   req.Template,
		Instructions: req.Instructions,
		Query:        req.Query,
		Budget:       req.Budget,
	}, nil
}

// parseSources turns id=weight, id=topics and id=level flags into weightings
func parseSources(sources, focus, difficulty []string) ([]models.SourceWeighting, error) {
	var out []models.SourceWeighting
	index := make(map[string]int)
	for _, s := range sources {
		id, value, err := splitPair("source", s)
		if err != nil {
			return nil, err
		}
		w, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("source %s: weight %q is not a number", id, value)
		}
		index[id] = len(out)
		out = append(out, models.SourceWeighting{DocumentID: id, Weight: w})
	}

	for _, f := range focus {
		id, value, err := splitPair("focus", f)
		if err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("focus given for %s which is not a --source", id)
		}
		for _, topic := range strings.Split(value, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				out[i].FocusTopics = append(out[i].FocusTopics, topic)
			}
		}
	}

	for _, d := range difficulty {
		id, value, err := splitPair("difficulty", d)
		if err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("difficulty given for %s which is not a --source", id)
		}
		out[i].Difficulty = value
	}
	return out, nil
}

func splitPair(flag, s string) (string, string, error) {
	id, value, ok := strings.Cut(s, "=")
	id, value = strings.TrimSpace(id), strings.TrimSpace(value)
	if !ok || id == "" || value == "" {
		return "", "", fmt.Errorf("--%s %q: want <doc-id>=<value>", flag, s)
	}
	return id, value, nil
}
