/*
Copyright © 2025 The Proofly Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/proofly/proofly/internal/config"
	"github.com/proofly/proofly/internal/pipeline"
)

var (
	inputFile    string
	outputPrefix string

	knowledge   string
	keywords    string
	expandHints bool
	editOnly    bool

	modelName string
	baseURL   string

	workers          int
	chunkSize        int
	chunkOverlap     int
	editChunkSize    int
	editChunkOverlap int

	dbPath      string
	noCache     bool
	maxAttempts int
	callTimeout time.Duration
)

var polishCmd = &cobra.Command{
	Use:   "polish",
	Short: "Proofread and restructure a transcript file",
	Long: `Run a transcript through both pipeline stages and write two files:
<output>.txt with the lightly-corrected text and <output>.md with the
restructured Markdown document.

The transcript is split into overlapping chunks; each chunk is proofread by
the LLM, the corrected chunks are merged with the duplicated overlap removed,
and the merged document is restructured by the editor role.

Optional hints:
  --knowledge   one or two sentences of domain background
  --keywords    comma-separated terms that must be spelled exactly
  --expand      enrich both hints through the LLM before processing

--edit-only skips the proofread stage and restructures the input as-is,
for transcripts that were already corrected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		logger := newLogger()
		p, cleanup, err := buildPipeline(cfg, noCache, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := p.Process(cmd.Context(), pipeline.Submission{
			Text:        string(raw),
			Knowledge:   knowledge,
			Keywords:    keywords,
			ExpandHints: expandHints,
			EditOnly:    editOnly,
		})
		if err != nil {
			return err
		}

		if dir := filepath.Dir(outputPrefix); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		txtPath := outputPrefix + ".txt"
		mdPath := outputPrefix + ".md"
		if err := os.WriteFile(txtPath, []byte(res.Proofread), 0644); err != nil {
			return fmt.Errorf("failed to write proofread text: %w", err)
		}
		if err := os.WriteFile(mdPath, []byte(res.Markdown), 0644); err != nil {
			return fmt.Errorf("failed to write markdown: %w", err)
		}

		fmt.Printf("Proofread text: %s\n", txtPath)
		fmt.Printf("Markdown:       %s\n", mdPath)
		if res.Stats.Cached {
			fmt.Println("Result served from cache.")
			return nil
		}
		fmt.Printf("Chunks: %d proofread, %d edit\n", res.Stats.ProofreadChunks, res.Stats.EditChunks)
		if res.Stats.AmbiguousJoins > 0 {
			fmt.Printf("Warning: %d chunk joins could not be de-duplicated (marked with ---)\n", res.Stats.AmbiguousJoins)
		}
		if len(res.Highlights) > 0 {
			fmt.Printf("Highlights: %d\n", len(res.Highlights))
		}
		fmt.Printf("Done in %s\n", res.Stats.Duration.Round(time.Millisecond))
		return nil
	},
}

// applyFlagOverrides lets explicitly-set flags win over environment and
// config-file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model = modelName
	}
	if f.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if f.Changed("chunk-overlap") {
		cfg.ChunkOverlap = chunkOverlap
	}
	if f.Changed("edit-chunk-size") {
		cfg.EditChunkSize = editChunkSize
	}
	if f.Changed("edit-chunk-overlap") {
		cfg.EditChunkOverlap = editChunkOverlap
	}
	if f.Changed("db") {
		cfg.DBPath = dbPath
	}
	if f.Changed("max-attempts") {
		cfg.MaxAttempts = maxAttempts
	}
	if f.Changed("timeout") {
		cfg.Timeout = callTimeout
	}
}

func init() {
	rootCmd.AddCommand(polishCmd)

	polishCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Transcript file to process (required)")
	polishCmd.Flags().StringVarP(&outputPrefix, "output", "o", "", "Output path prefix; writes <prefix>.txt and <prefix>.md (required)")

	polishCmd.Flags().StringVar(&knowledge, "knowledge", "", "Domain background hint passed to both stages")
	polishCmd.Flags().StringVar(&keywords, "keywords", "", "Comma-separated key terms that must be spelled exactly")
	polishCmd.Flags().BoolVar(&expandHints, "expand", false, "Expand knowledge/keywords through the LLM before processing")
	polishCmd.Flags().BoolVar(&editOnly, "edit-only", false, "Skip the proofread stage and restructure the input as-is")

	polishCmd.Flags().StringVar(&modelName, "model", "gpt-4o-mini", "Model name")
	polishCmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible base URL (default: official API)")

	polishCmd.Flags().IntVar(&workers, "workers", 4, "Concurrent chunk calls in the proofread stage (1 = sequential)")
	polishCmd.Flags().IntVar(&chunkSize, "chunk-size", 1500, "Maximum proofread chunk size in runes")
	polishCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 100, "Overlap between proofread chunks in runes")
	polishCmd.Flags().IntVar(&editChunkSize, "edit-chunk-size", 2000, "Maximum edit chunk size in runes")
	polishCmd.Flags().IntVar(&editChunkOverlap, "edit-chunk-overlap", 200, "Overlap between edit chunks in runes")

	polishCmd.Flags().StringVar(&dbPath, "db", "./data/proofly.db", "Database path for the result cache")
	polishCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the result cache")
	polishCmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "Total attempts per chunk including the first (1 = no retries)")
	polishCmd.Flags().DurationVar(&callTimeout, "timeout", 120*time.Second, "Timeout for a single LLM call")

	polishCmd.MarkFlagRequired("input")
	polishCmd.MarkFlagRequired("output")
}
