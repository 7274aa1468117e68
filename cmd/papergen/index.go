package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"exampaper-rag/internal/ingest"
	"exampaper-rag/internal/models"
	"exampaper-rag/internal/processor"
)

var indexDocType string

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index PDF or text files",
	Long:  `Extracts, chunks and embeds each file and stores it in the vector store. Each file becomes one document.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

func init() {
	indexCmd.Flags().StringVarP(&indexDocType, "type", "t", string(models.DocumentTextbook), "Document type: textbook or sample")

	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	docType := models.DocumentType(indexDocType)
	if docType != models.DocumentTextbook && docType != models.DocumentSample {
		return fmt.Errorf("unknown document type %q", indexDocType)
	}
	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	embedder.MaxConcurrent = cfg.Ingest.MaxConcurrent

	ix := ingest.NewIndexer(
		processor.NewPDFProcessor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		embedder, db, cfg.Ingest.MaxConcurrent, log)

	failed := 0
	for _, path := range args {
		doc, err := ix.IndexFile(ctx, path, docType)
		if err != nil {
			failed++
			cmd.Printf("%s  failed  %s: %v\n", doc.ID, path, err)
			continue
		}
		cmd.Printf("%s  indexed  %s (%d chunks)\n", doc.ID, path, len(doc.ChunkIDs))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to index", failed, len(args))
	}
	return nil
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents indexed")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("%s  %-8s  %-8s  %s  %s\n", d.ID, d.Type, d.Status, d.CreatedAt.Format("2006-01-02 15:04"), d.Filename)
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteDocument(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
