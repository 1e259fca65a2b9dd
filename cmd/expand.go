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

	"github.com/spf13/cobra"

	"github.com/proofly/proofly/internal/config"
	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/prompt"
)

var (
	expandKnowledge string
	expandKeywords  string
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand domain-knowledge and keyword hints through the LLM",
	Long: `Preview the enriched hints the pipeline would use with --expand:
the domain hint gains a few core terms and a sentence of background, and the
keyword list gains related same-level terms.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if expandKnowledge == "" && expandKeywords == "" {
			return fmt.Errorf("nothing to expand: pass --knowledge and/or --keywords")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := newLogger()
		client, err := llm.NewOpenAIClient(llm.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			MaxAttempts: cfg.MaxAttempts,
			RetryDelay:  cfg.RetryDelay,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}

		ctx := cmd.Context()

		if expandKnowledge != "" {
			expanded, err := client.Complete(ctx, prompt.ExpandKnowledge(expandKnowledge))
			if err != nil {
				return fmt.Errorf("knowledge expansion failed: %w", err)
			}
			fmt.Printf("Knowledge:\n%s\n", expanded)
			expandKnowledge = expanded
		}

		if expandKeywords != "" {
			expanded, err := client.Complete(ctx, prompt.ExpandKeywords(expandKeywords, expandKnowledge))
			if err != nil {
				return fmt.Errorf("keyword expansion failed: %w", err)
			}
			fmt.Printf("Keywords:\n%s\n", expanded)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(expandCmd)

	expandCmd.Flags().StringVar(&expandKnowledge, "knowledge", "", "Domain background hint to expand")
	expandCmd.Flags().StringVar(&expandKeywords, "keywords", "", "Comma-separated keyword list to expand")
}
