package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/progress"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
)

// scanResult is the CLI output shape for a completed scan.
type scanResult struct {
	Field      string  `json:"field" yaml:"field"`
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan a label image or PDF and extract a product field",
	Long: `Scan an image or PDF file and extract the requested product field
from the recognized text.

Supported inputs: JPEG, PNG, and other common image formats, plus PDF
documents (first page only).

Examples:
  labelscan scan label.jpg
  labelscan scan label.jpg --field barcode
  labelscan scan receipt.pdf --field description --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		fieldFlag, _ := cmd.Flags().GetString("field")
		field, err := extract.ParseField(fieldFlag)
		if err != nil {
			return err
		}

		format := cfg.Output.Format
		if cmd.Flags().Changed("format") {
			format, _ = cmd.Flags().GetString("format")
		}
		validFormats := []string{outputFormatText, outputFormatJSON, outputFormatYAML}
		valid := false
		for _, f := range validFormats {
			if format == f {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		eng := engine.NewTesseract(cfg.ToEngineConfig())
		orch := capture.New(nil, eng, capture.WithMultipassConfig(cfg.ToMultipassConfig()))
		defer func() { _ = orch.Close() }()

		var onProgress progress.Func
		if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
			onProgress = func(message string, fraction float64) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%3.0f%% %s\n", fraction*100, message)
			}
		}

		outcome, err := orch.ProcessFile(cmd.Context(), field, declaredTypeFor(args[0]), data, onProgress)
		if err != nil {
			return err
		}
		if !outcome.OK() {
			return errors.New(outcome.Message)
		}

		return writeResult(cmd, format, cfg.Output.ConfidencePrecision, outcome)
	},
}

// declaredTypeFor maps a filename extension onto the declared MIME
// type. Unknown extensions are left for content sniffing.
func declaredTypeFor(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	default:
		return ""
	}
}

func writeResult(cmd *cobra.Command, format string, precision int, outcome capture.Outcome) error {
	result := scanResult{
		Field:      string(outcome.Field),
		Value:      outcome.Value,
		Confidence: outcome.Confidence,
	}

	out := cmd.OutOrStdout()
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case outputFormatYAML:
		return yaml.NewEncoder(out).Encode(result)
	default:
		_, err := fmt.Fprintf(out, "%s: %s (confidence %.*f)\n",
			result.Field, result.Value, precision, result.Confidence)
		return err
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("field", "f", "name", "target field: name, description, or barcode")
	scanCmd.Flags().String("format", "text", "output format: text, json, or yaml")
	scanCmd.Flags().Bool("progress", false, "print progress stages to stderr")
}
