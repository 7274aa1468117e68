package main

import (
	"github.com/spf13/cobra"

	"exampaper-rag/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List paper templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, _ []string) error {
	registry, err := templates.NewRegistry(cfg.Templates.Dir)
	if err != nil {
		return err
	}
	for _, id := range registry.IDs() {
		tpl, err := registry.Get(id)
		if err != nil {
			return err
		}
		cmd.Printf("%-12s  %2d questions  %3d marks  %s\n", tpl.ID, len(tpl.Slots), tpl.TotalMarks, tpl.Name)
	}
	return nil
}
