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
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/proofly/proofly/internal/config"
	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/markdown"
	"github.com/proofly/proofly/internal/pipeline"
	"github.com/proofly/proofly/internal/segmenter"
)

var (
	servePort    int
	serveNoCache bool
)

// maxSessionResults bounds how many processed results are kept in memory
// for download/preview; the oldest are evicted first.
const maxSessionResults = 100

// sessionResults holds recent results for the download and preview
// endpoints. Results live in memory only and vanish on restart.
type sessionResults struct {
	mu      sync.Mutex
	results map[string]*pipeline.Result
	order   []string
}

func newSessionResults() *sessionResults {
	return &sessionResults{results: make(map[string]*pipeline.Result)}
}

func (s *sessionResults) put(res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) >= maxSessionResults {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}
	s.results[res.ID] = res
	s.order = append(s.order, res.ID)
}

func (s *sessionResults) get(id string) (*pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	return res, ok
}

type polishRequest struct {
	Text      string `json:"text"`
	Knowledge string `json:"knowledge"`
	Keywords  string `json:"keywords"`
	Expand    bool   `json:"expand"`
	EditOnly  bool   `json:"edit_only"`
}

type polishResponse struct {
	ID         string   `json:"id"`
	Proofread  string   `json:"proofread"`
	Markdown   string   `json:"markdown"`
	Highlights []string `json:"highlights,omitempty"`
	Chunks     int      `json:"chunks"`
	EditChunks int      `json:"edit_chunks"`
	Cached     bool     `json:"cached"`
	DurationMS int64    `json:"duration_ms"`
}

// newServer builds the fiber app around a pipeline. Split from the command
// so the routes can be exercised with app.Test.
func newServer(p *pipeline.Pipeline) *fiber.App {
	sessions := newSessionResults()

	app := fiber.New(fiber.Config{
		AppName:               "proofly",
		DisableStartupMessage: true,
		// Transcripts can be large; default 4MB is too small for
		// multi-hour recordings.
		BodyLimit: 32 * 1024 * 1024,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/api/polish", func(c *fiber.Ctx) error {
		var req polishRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}

		res, err := p.Process(c.Context(), pipeline.Submission{
			Text:        req.Text,
			Knowledge:   req.Knowledge,
			Keywords:    req.Keywords,
			ExpandHints: req.Expand,
			EditOnly:    req.EditOnly,
		})
		if err != nil {
			if errors.Is(err, pipeline.ErrEmptySubmission) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			var upstream *llm.UpstreamError
			if errors.As(err, &upstream) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			if errors.Is(err, segmenter.ErrInvalidConfig) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		sessions.put(res)

		return c.JSON(polishResponse{
			ID:         res.ID,
			Proofread:  res.Proofread,
			Markdown:   res.Markdown,
			Highlights: res.Highlights,
			Chunks:     res.Stats.ProofreadChunks,
			EditChunks: res.Stats.EditChunks,
			Cached:     res.Stats.Cached,
			DurationMS: res.Stats.Duration.Milliseconds(),
		})
	})

	app.Get("/api/result/:id/markdown", func(c *fiber.Ctx) error {
		res, ok := sessions.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "result not found")
		}
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.ID+".md"))
		return c.SendString(res.Markdown)
	})

	app.Get("/api/result/:id/html", func(c *fiber.Ctx) error {
		res, ok := sessions.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "result not found")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(markdown.ToHTML([]byte(res.Markdown)))
	})

	app.Get("/api/result/:id/text", func(c *fiber.Ctx) error {
		res, ok := sessions.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "result not found")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(markdown.ToPlainText([]byte(res.Markdown)))
	})

	return app
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Start an HTTP server exposing the pipeline:

  POST /api/polish                JSON {text, knowledge, keywords, expand, edit_only}
  GET  /api/result/:id/markdown   Download the Markdown output
  GET  /api/result/:id/html       Rendered HTML preview
  GET  /api/result/:id/text       Plain-text rendering of the Markdown
  GET  /healthz                   Liveness check

Results are held in memory for download; nothing survives a restart except
the optional SQLite result cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}

		logger := newLogger()
		p, cleanup, err := buildPipeline(cfg, serveNoCache, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		app := newServer(p)

		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("listening", "addr", addr)
		return app.Listen(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 8501, "HTTP listen port")
	serveCmd.Flags().BoolVar(&serveNoCache, "no-cache", false, "Disable the result cache")
}
