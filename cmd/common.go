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

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/proofly/proofly/internal/config"
	"github.com/proofly/proofly/internal/editor"
	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/pipeline"
	"github.com/proofly/proofly/internal/proofreader"
	"github.com/proofly/proofly/internal/segmenter"
	"github.com/proofly/proofly/internal/store"
)

// newLogger builds the process logger. An explicit --log-level flag wins
// over config file and environment.
func newLogger() *log.Logger {
	level := viper.GetString("log_level")
	if v := rootCmd.PersistentFlags().Lookup("log-level"); v != nil && v.Changed {
		level = v.Value.String()
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           parsed,
	})
}

// buildPipeline assembles the full pipeline from resolved configuration.
// The returned cleanup closes the store (a no-op when caching is off).
func buildPipeline(cfg *config.Config, noCache bool, logger *log.Logger) (*pipeline.Pipeline, func(), error) {
	client, err := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	proofSeg, err := segmenter.New(segmenter.Config{
		MaxSize: cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid proofread segmentation: %w", err)
	}

	editSeg, err := segmenter.New(segmenter.Config{
		MaxSize: cfg.EditChunkSize,
		Overlap: cfg.EditChunkOverlap,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid edit segmentation: %w", err)
	}

	var db *store.Store
	cleanup := func() {}
	if !noCache && cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = store.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		cleanup = func() { _ = db.Close() }
	}

	pr := proofreader.New(client, proofSeg, cfg.Workers, logger)
	ed := editor.New(client, editSeg, logger)

	return pipeline.New(client, pr, ed, db, cfg.Model, logger), cleanup, nil
}
