package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"exampaper-rag/internal/jobs"
	"exampaper-rag/internal/models"
)

var cleanupOlderThan time.Duration

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show a job, or list all jobs",
	Long:  `Shows job state from the configured job table. Only the redis table is shared between processes.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a job that has not started parsing",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [job-id]",
	Short: "Remove finished jobs and their files",
	Long:  `Removes one finished job, or with no argument every finished job older than --older-than.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Age cutoff when purging (default jobs.retention)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func withAdmin(cmd *cobra.Command, fn func(*jobs.Admin, jobs.Table) error) error {
	table, release, err := openTable(cmd.Context())
	if err != nil {
		return err
	}
	defer release()
	return fn(jobs.NewAdmin(table, log), table)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(admin *jobs.Admin, table jobs.Table) error {
		if len(args) == 1 {
			job, err := admin.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd, job)
			return nil
		}

		all, err := table.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			cmd.Println("No jobs")
			return nil
		}
		for _, j := range all {
			cmd.Printf("%s  %-12s  %s  %s\n", j.ID, j.Status, j.CreatedAt.Format(time.RFC3339), j.Params.TemplateID)
		}
		return nil
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(admin *jobs.Admin, _ jobs.Table) error {
		job, err := admin.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJob(cmd, job)
		return nil
	})
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(admin *jobs.Admin, _ jobs.Table) error {
		if len(args) == 1 {
			if err := admin.Cleanup(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Removed %s\n", args[0])
			return nil
		}
		age := cleanupOlderThan
		if age == 0 {
			age = cfg.Jobs.Retention
		}
		n, err := admin.Purge(cmd.Context(), age)
		if err != nil {
			return err
		}
		cmd.Printf("Removed %d jobs\n", n)
		return nil
	})
}

func printJob(cmd *cobra.Command, job *models.GenerationJob) {
	cmd.Printf("Job:      %s\n", job.ID)
	cmd.Printf("Status:   %s\n", job.Status)
	cmd.Printf("Template: %s\n", job.Params.TemplateID)
	sources := make([]string, len(job.Params.Sources))
	for i, s := range job.Params.Sources {
		sources[i] = s.DisplayName() + "=" + strconv.Itoa(s.Weight)
	}
	cmd.Printf("Sources:  %s\n", strings.Join(sources, ", "))
	cmd.Printf("Updated:  %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Artifact != nil {
		cmd.Printf("Paper:    %s\n", job.Artifact.TextPath)
		if job.Artifact.PDFPath != "" {
			cmd.Printf("PDF:      %s\n", job.Artifact.PDFPath)
		}
		cmd.Printf("Summary:  %s\n", job.Artifact.JSONPath)
		cmd.Printf("SHA-256:  %s\n", job.Artifact.SHA256)
	}
	if job.Error != nil {
		cmd.Printf("Error:    %s at %s: %s\n", job.Error.Kind, job.Error.Stage, job.Error.Message)
		for _, v := range job.Error.Violations {
			cmd.Printf("          - %s\n", v)
		}
	}
}
