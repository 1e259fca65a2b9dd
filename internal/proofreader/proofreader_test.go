package proofreader

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/segmenter"
)

type mockClient struct {
	completeFn func(ctx context.Context, req llm.CompletionRequest) (string, error)
	calls      atomic.Int32
}

func (m *mockClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.calls.Add(1)
	return m.completeFn(ctx, req)
}

// echoClient returns the chunk text unchanged after a small random delay, so
// completion order differs from submission order.
func echoClient() *mockClient {
	return &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
			return req.Prompt, nil
		},
	}
}

// uniqueSentences builds text whose every sentence is distinct, so overlap
// matching in the merge step cannot latch onto a coincidental repeat.
func uniqueSentences(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "Sentence number %d covers its own distinct topic. ", i)
	}
	return strings.TrimSpace(sb.String())
}

func newSegmenter(t *testing.T, maxSize, overlap int) *segmenter.Segmenter {
	t.Helper()
	seg, err := segmenter.New(segmenter.Config{MaxSize: maxSize, Overlap: overlap})
	if err != nil {
		t.Fatalf("segmenter.New: %v", err)
	}
	return seg
}

func TestRun_EmptyInput(t *testing.T) {
	client := echoClient()
	p := New(client, newSegmenter(t, 100, 20), 2, nil)

	res, err := p.Run(context.Background(), "   \n  ", "", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "" || res.Chunks != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if client.calls.Load() != 0 {
		t.Errorf("no LLM calls expected for empty input, got %d", client.calls.Load())
	}
}

func TestRun_SingleChunk(t *testing.T) {
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			return "corrected short text", nil
		},
	}
	p := New(client, newSegmenter(t, 1000, 100), 4, nil)

	res, err := p.Run(context.Background(), "short text", "", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "corrected short text" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Chunks != 1 || len(res.Parts) != 1 {
		t.Errorf("Chunks = %d, Parts = %d, want 1 each", res.Chunks, len(res.Parts))
	}
	if client.calls.Load() != 1 {
		t.Errorf("expected 1 LLM call, got %d", client.calls.Load())
	}
}

func TestRun_ReassemblesByChunkIndex(t *testing.T) {
	text := uniqueSentences(30)
	seg := newSegmenter(t, 120, 24)
	chunks := seg.Split(segmenter.Clean(text))
	if len(chunks) < 3 {
		t.Fatalf("test needs ≥3 chunks, got %d", len(chunks))
	}

	client := echoClient()
	p := New(client, seg, 4, nil)

	res, err := p.Run(context.Background(), text, "", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Chunks != len(chunks) {
		t.Errorf("Chunks = %d, want %d", res.Chunks, len(chunks))
	}
	// Parts must be in chunk order even though completion order was random.
	for i, want := range chunks {
		if res.Parts[i] != want.Text {
			t.Fatalf("part %d out of order", i)
		}
	}
	// Identity proofreading means every sentence survives exactly once
	// after overlap removal.
	for i := 0; i < 30; i++ {
		needle := fmt.Sprintf("Sentence number %d ", i)
		if got := strings.Count(res.Text, needle); got != 1 {
			t.Errorf("sentence %d appears %d times in merged output", i, got)
		}
	}
	if res.AmbiguousJoins != 0 {
		t.Errorf("identity output should merge cleanly, got %d ambiguous joins", res.AmbiguousJoins)
	}
	if int(client.calls.Load()) != len(chunks) {
		t.Errorf("expected %d LLM calls, got %d", len(chunks), client.calls.Load())
	}
}

func TestRun_ChunkFailureAbortsWithLowestIndex(t *testing.T) {
	upstream := errors.New("model unavailable")
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			return "", upstream
		},
	}
	seg := newSegmenter(t, 120, 24)
	p := New(client, seg, 4, nil)

	res, err := p.Run(context.Background(), uniqueSentences(30), "", "")
	if res != nil {
		t.Errorf("expected no partial result, got %+v", res)
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChunkError, got %T: %v", err, err)
	}
	if ce.Index != 0 {
		t.Errorf("lowest failing index wins: got %d", ce.Index)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("ChunkError must wrap the upstream failure: %v", err)
	}
}

func TestRun_SingleFailingChunkReported(t *testing.T) {
	seg := newSegmenter(t, 120, 24)
	text := uniqueSentences(30)
	chunks := seg.Split(segmenter.Clean(text))
	failText := chunks[2].Text

	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			if req.Prompt == failText {
				return "", errors.New("boom")
			}
			return req.Prompt, nil
		},
	}
	p := New(client, seg, 4, nil)

	_, err := p.Run(context.Background(), text, "", "")
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChunkError, got %v", err)
	}
	if ce.Index != 2 || ce.Total != len(chunks) {
		t.Errorf("ChunkError = %d/%d, want 2/%d", ce.Index, ce.Total, len(chunks))
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	const workers = 2
	var inFlight, peak atomic.Int32
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return req.Prompt, nil
		},
	}
	p := New(client, newSegmenter(t, 120, 24), workers, nil)

	if _, err := p.Run(context.Background(), uniqueSentences(40), "", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency %d exceeds worker bound %d", got, workers)
	}
}

func TestRun_AmbiguousJoinsCounted(t *testing.T) {
	var n atomic.Int32
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			// Outputs share nothing, so no join can be de-duplicated.
			return fmt.Sprintf("Rewritten block %c with no shared tail.", 'A'+n.Add(1)-1), nil
		},
	}
	seg := newSegmenter(t, 120, 24)
	text := uniqueSentences(30)
	chunks := seg.Split(segmenter.Clean(text))

	p := New(client, seg, 1, nil)
	res, err := p.Run(context.Background(), text, "", "")
	if err != nil {
		t.Fatalf("ambiguous joins must not fail the run: %v", err)
	}
	if res.AmbiguousJoins != len(chunks)-1 {
		t.Errorf("AmbiguousJoins = %d, want %d", res.AmbiguousJoins, len(chunks)-1)
	}
	if strings.Count(res.Text, "---") != len(chunks)-1 {
		t.Errorf("expected %d visible separators:\n%s", len(chunks)-1, res.Text)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			return "", ctx.Err()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(client, newSegmenter(t, 120, 24), 2, nil)
	_, err := p.Run(ctx, uniqueSentences(30), "", "")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChunkError, got %T: %v", err, err)
	}
}
