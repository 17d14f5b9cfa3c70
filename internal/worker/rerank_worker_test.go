package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantrad-search/internal/domain"
)

type stubScorer struct {
	logits map[string]float64
	err    error
	calls  int32
}

func (s *stubScorer) Score(_ context.Context, _ string, document string) (float64, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return 0, s.err
	}
	return s.logits[document], nil
}

type stubLoader struct {
	scorer    domain.CrossEncoderScorer
	err       error
	loadCalls int32
	delay     time.Duration
}

func (l *stubLoader) Load(_ context.Context, onProgress func(domain.ModelLoadProgress)) (domain.CrossEncoderScorer, error) {
	atomic.AddInt32(&l.loadCalls, 1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return nil, l.err
	}
	if onProgress != nil {
		onProgress(domain.ModelLoadProgress{Stage: "ready", Percent: 100})
	}
	return l.scorer, nil
}

func newTestWorker(t *testing.T, loader *stubLoader) *RerankWorker {
	t.Helper()
	w := NewRerankWorker(loader, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func waitForState(t *testing.T, w *RerankWorker, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if w.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("worker never reached state %s (still %s)", want, w.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRerankWorker_RejectsBeforeInit(t *testing.T) {
	w := newTestWorker(t, &stubLoader{scorer: &stubScorer{}})

	_, err := w.Rerank(context.Background(), "q", []any{"doc"})
	assert.True(t, errors.Is(err, domain.ErrModelNotReady))
	assert.Equal(t, StateIdle, w.State())
}

func TestRerankWorker_InitIdempotent(t *testing.T) {
	loader := &stubLoader{scorer: &stubScorer{}, delay: 50 * time.Millisecond}
	w := newTestWorker(t, loader)

	require.NoError(t, w.Init(context.Background()))
	// Re-init while loading and again once ready: both are no-ops.
	require.NoError(t, w.Init(context.Background()))
	waitForState(t, w, StateReady)
	require.NoError(t, w.Init(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.loadCalls))
	assert.Equal(t, 100, w.Progress().Percent)
}

func TestRerankWorker_RejectsWhileLoading(t *testing.T) {
	loader := &stubLoader{scorer: &stubScorer{}, delay: 100 * time.Millisecond}
	w := newTestWorker(t, loader)

	require.NoError(t, w.Init(context.Background()))
	_, err := w.Rerank(context.Background(), "q", []any{"doc"})
	assert.True(t, errors.Is(err, domain.ErrModelNotReady))

	waitForState(t, w, StateReady)
}

func TestRerankWorker_LoadFailureIsTerminal(t *testing.T) {
	loader := &stubLoader{err: errors.New("download failed")}
	w := newTestWorker(t, loader)

	require.NoError(t, w.Init(context.Background()))
	waitForState(t, w, StateError)

	// A later init surfaces the stored failure without reloading.
	err := w.Init(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.loadCalls))

	_, err = w.Rerank(context.Background(), "q", []any{"doc"})
	assert.True(t, errors.Is(err, domain.ErrModelNotReady))
}

func TestRerankWorker_RerankSortsBySigmoidScore(t *testing.T) {
	scorer := &stubScorer{logits: map[string]float64{
		"faible":    -2.0,
		"fort":      3.0,
		"tres fort": 5.0,
	}}
	w := newTestWorker(t, &stubLoader{scorer: scorer})

	require.NoError(t, w.Init(context.Background()))
	waitForState(t, w, StateReady)

	docs, err := w.Rerank(context.Background(), "q", []any{"faible", "tres fort", "fort"})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "tres fort", docs[0].Text)
	assert.Equal(t, 1, docs[0].Index)
	assert.Equal(t, "fort", docs[1].Text)
	assert.Equal(t, "faible", docs[2].Text)

	for _, d := range docs {
		assert.GreaterOrEqual(t, d.Score, 0.0)
		assert.LessOrEqual(t, d.Score, 1.0)
	}
	assert.InDelta(t, 0.1192, docs[2].Score, 0.001)
}

func TestRerankWorker_FailedRerankKeepsReadyState(t *testing.T) {
	scorer := &stubScorer{err: errors.New("scorer down")}
	w := newTestWorker(t, &stubLoader{scorer: scorer})

	require.NoError(t, w.Init(context.Background()))
	waitForState(t, w, StateReady)

	_, err := w.Rerank(context.Background(), "q", []any{"doc"})
	assert.Error(t, err)
	assert.Equal(t, StateReady, w.State())

	// The worker still accepts calls after a failure.
	scorer.err = nil
	_, err = w.Rerank(context.Background(), "q", []any{"doc"})
	assert.NoError(t, err)
}

func TestExtractDocumentText_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		doc  any
		want string
	}{
		{"string passthrough", "du texte brut", "du texte brut"},
		{"content first", map[string]any{"content": "c", "text": "t"}, "c"},
		{"texte_propose before text", map[string]any{"texte_propose": "tp", "text": "t"}, "tp"},
		{"text before snippet", map[string]any{"text": "t", "snippet": "s"}, "t"},
		{"snippet before doc_text", map[string]any{"snippet": "s", "doc_text": "d"}, "s"},
		{"doc_text last", map[string]any{"doc_text": "d"}, "d"},
		{"empty field skipped", map[string]any{"content": "", "text": "t"}, "t"},
		{"unknown object serialized", map[string]any{"autre": "x"}, `{"autre":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDocumentText(tt.doc))
		})
	}
}
