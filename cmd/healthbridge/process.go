package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/healthbridge/platform/pkg/app"
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/models"
	"github.com/healthbridge/platform/pkg/documents"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/normalizer"
	"github.com/healthbridge/platform/pkg/pipeline"
)

type processFlags struct {
	docType  string
	hospital string
	location string
	mapping  string
	save     bool
	raw      bool
}

func processCmd() *cobra.Command {
	flags := &processFlags{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract patients and diseases from a document",
	}
	cmd.PersistentFlags().StringVar(&flags.hospital, "hospital", "", "hospital or clinic applied when the document names none")
	cmd.PersistentFlags().StringVar(&flags.location, "location", "", "source location applied to patients")
	cmd.PersistentFlags().BoolVar(&flags.save, "save", false, "persist results to the database")
	cmd.PersistentFlags().BoolVar(&flags.raw, "raw", false, "include provider responses in the output")

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Process an image, PDF or text document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, contentType, err := readFile(args[0])
			if err != nil {
				return err
			}
			up := documents.DocumentUpload{
				Filename:     filepath.Base(args[0]),
				ContentType:  contentType,
				Content:      content,
				DocumentType: flags.docType,
				HospitalName: flags.hospital,
				Location:     flags.location,
				IncludeRaw:   flags.raw,
			}
			if flags.save {
				return withDocuments(cmd, func(svc *documents.Service) (*models.ProcessResponse, error) {
					return svc.ProcessDocument(cmd.Context(), up)
				})
			}
			return preview(cmd, flags, pipeline.Request{
				Content:     content,
				ContentType: contentType,
				Filename:    up.Filename,
				Hint:        flags.docType,
			})
		},
	}
	fileCmd.Flags().StringVar(&flags.docType, "type", "", "document type override (lab_report, prescription, clinical_text, structured_data)")

	textCmd := &cobra.Command{
		Use:   "text <text|->",
		Short: "Process clinical text; '-' reads standard input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}
			if flags.save {
				return withDocuments(cmd, func(svc *documents.Service) (*models.ProcessResponse, error) {
					return svc.ProcessText(cmd.Context(), documents.TextRequest{
						Text:         text,
						HospitalName: flags.hospital,
						Location:     flags.location,
						IncludeRaw:   flags.raw,
					})
				})
			}
			return preview(cmd, flags, pipeline.Request{
				Content:     []byte(text),
				ContentType: "text/plain",
				Filename:    "clinical_text.txt",
				Hint:        "clinical_text",
			})
		},
	}

	batchCmd := &cobra.Command{
		Use:   "batch <path>",
		Short: "Import a CSV or JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, contentType, err := readFile(args[0])
			if err != nil {
				return err
			}
			var mapping map[string]string
			if flags.mapping != "" {
				if err := json.Unmarshal([]byte(flags.mapping), &mapping); err != nil {
					return fmt.Errorf("--mapping must be a JSON object: %w", err)
				}
			}
			if flags.save {
				return withDocuments(cmd, func(svc *documents.Service) (*models.BatchResponse, error) {
					return svc.ProcessBatch(cmd.Context(), documents.BatchUpload{
						Filename:      filepath.Base(args[0]),
						ContentType:   contentType,
						Content:       content,
						ColumnMapping: mapping,
						HospitalName:  flags.hospital,
						Location:      flags.location,
					})
				})
			}
			return preview(cmd, flags, pipeline.Request{
				Content:     content,
				ContentType: contentType,
				Filename:    filepath.Base(args[0]),
				Hint:        "structured_data",
				Options:     extraction.Options{ColumnMapping: mapping},
			})
		},
	}
	batchCmd.Flags().StringVar(&flags.mapping, "mapping", "", `column overrides as JSON, e.g. {"name":"Client"}`)

	cmd.AddCommand(fileCmd, textCmd, batchCmd)
	return cmd
}

// preview runs the pipeline and normalizes into memory so the output shows
// canonical patients without touching the database.
func preview(cmd *cobra.Command, flags *processFlags, req pipeline.Request) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := app.NewPipeline(cfg).Process(ctx, req)
	out := map[string]interface{}{
		"success":        result.Success,
		"document_type":  result.DocumentType,
		"service_used":   result.ServiceUsed,
		"services_tried": result.ServicesTried,
		"confidence":     result.Confidence,
		"extracted_data": result.Data,
	}
	if flags.raw {
		out["raw_responses"] = result.RawResponses
	}
	if !result.Success {
		out["error"] = result.ErrorMessage
		if err := printJSON(cmd, out); err != nil {
			return err
		}
		return result.Err()
	}

	saver := normalizer.NewService(normalizer.NewMemoryStore(), app.Catalog(cfg))
	saved, err := saver.NormalizeAndSave(ctx, result.Data, normalizer.Options{
		DefaultHospital: firstNonEmpty(flags.hospital, cfg.DefaultHospital),
		DefaultLocation: firstNonEmpty(flags.location, cfg.DefaultLocation),
	})
	out["patients"] = saved
	if printErr := printJSON(cmd, out); printErr != nil {
		return printErr
	}
	return err
}

// withDocuments runs fn against the database-backed document service and
// prints whatever response it produced, including failed runs.
func withDocuments[T any](cmd *cobra.Command, fn func(svc *documents.Service) (*T, error)) error {
	application, err := app.New(config.Load(), false)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer application.Close()

	resp, err := fn(application.Documents)
	if resp != nil {
		if printErr := printJSON(cmd, resp); printErr != nil {
			return printErr
		}
	}
	return err
}

func readFile(path string) ([]byte, string, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, "", err
	}
	if len(content) == 0 {
		return nil, "", errors.New("file is empty")
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ft, ok := extraction.SniffFileType(content); ok {
		contentType = ft.MIME
	}
	return content, contentType, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
