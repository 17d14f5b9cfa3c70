// Package worker hosts the local cross-encoder rerank worker: a
// single-goroutine state machine that downloads the model once and
// then scores (query, document) pairs on demand.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"scantrad-search/internal/domain"
)

// State is the worker lifecycle phase. Transitions are monotonic:
// idle -> loading -> ready, with error absorbing from idle and loading.
// A failed rerank call does not leave ready.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// RerankedDoc is one scored document, score in [0,1].
type RerankedDoc struct {
	// Index is the document's position in the input slice.
	Index int
	Text  string
	Score float64
}

type msgKind int

const (
	msgInit msgKind = iota
	msgRerank
)

type rerankReply struct {
	docs []RerankedDoc
	err  error
}

type message struct {
	kind  msgKind
	ctx   context.Context
	query string
	docs  []any
	reply chan rerankReply
}

// RerankWorker owns the local cross-encoder. All state transitions and
// scoring happen on one goroutine; callers interact through messages.
// Rerank calls made before the model is ready are rejected
// synchronously without entering the queue.
type RerankWorker struct {
	loader domain.ModelLoader
	logger *slog.Logger

	msgs     chan message
	stopChan chan struct{}

	mu       sync.RWMutex
	state    State
	loadErr  error
	progress domain.ModelLoadProgress
	scorer   domain.CrossEncoderScorer
}

func NewRerankWorker(loader domain.ModelLoader, logger *slog.Logger) *RerankWorker {
	return &RerankWorker{
		loader:   loader,
		logger:   logger,
		msgs:     make(chan message),
		stopChan: make(chan struct{}),
		state:    StateIdle,
	}
}

func (w *RerankWorker) Start() {
	w.logger.Info("rerank_worker_started")
	go w.run()
}

func (w *RerankWorker) Stop() {
	w.logger.Info("rerank_worker_stopping")
	close(w.stopChan)
}

// State returns the current lifecycle phase.
func (w *RerankWorker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Progress returns the last model load progress event.
func (w *RerankWorker) Progress() domain.ModelLoadProgress {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.progress
}

// Init triggers the model load. It returns immediately: a load already
// in flight or completed makes the call a no-op, and a previous load
// failure is returned without retrying.
func (w *RerankWorker) Init(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateLoading, StateReady:
		w.mu.Unlock()
		return nil
	case StateError:
		err := w.loadErr
		w.mu.Unlock()
		return err
	}
	w.state = StateLoading
	w.mu.Unlock()

	select {
	case w.msgs <- message{kind: msgInit, ctx: ctx}:
		return nil
	case <-w.stopChan:
		return fmt.Errorf("rerank worker stopped")
	case <-ctx.Done():
		w.setError(ctx.Err())
		return ctx.Err()
	}
}

// Rerank scores the documents against the query, highest first. Calls
// made while the model is not ready fail synchronously with
// ErrModelNotReady. A failed call rejects that call only; the worker
// stays ready.
func (w *RerankWorker) Rerank(ctx context.Context, query string, docs []any) ([]RerankedDoc, error) {
	if w.State() != StateReady {
		return nil, fmt.Errorf("%w: worker state is %s", domain.ErrModelNotReady, w.State())
	}

	reply := make(chan rerankReply, 1)
	msg := message{kind: msgRerank, ctx: ctx, query: query, docs: docs, reply: reply}

	select {
	case w.msgs <- msg:
	case <-w.stopChan:
		return nil, fmt.Errorf("rerank worker stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.docs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *RerankWorker) run() {
	for {
		select {
		case <-w.stopChan:
			return
		case msg := <-w.msgs:
			switch msg.kind {
			case msgInit:
				w.handleInit(msg.ctx)
			case msgRerank:
				msg.reply <- w.handleRerank(msg.ctx, msg.query, msg.docs)
			}
		}
	}
}

func (w *RerankWorker) handleInit(ctx context.Context) {
	scorer, err := w.loader.Load(ctx, func(p domain.ModelLoadProgress) {
		w.mu.Lock()
		w.progress = p
		w.mu.Unlock()
		w.logger.Info("model_load_progress",
			slog.String("stage", p.Stage),
			slog.Int("percent", p.Percent))
	})
	if err != nil {
		w.logger.Error("model_load_failed", slog.Any("error", err))
		w.setError(err)
		return
	}

	w.mu.Lock()
	w.scorer = scorer
	w.state = StateReady
	w.mu.Unlock()
	w.logger.Info("rerank_worker_ready")
}

func (w *RerankWorker) handleRerank(ctx context.Context, query string, docs []any) rerankReply {
	scored := make([]RerankedDoc, 0, len(docs))
	for i, doc := range docs {
		text := ExtractDocumentText(doc)
		logit, err := w.scorer.Score(ctx, query, text)
		if err != nil {
			return rerankReply{err: fmt.Errorf("failed to score document %d: %w", i, err)}
		}
		scored = append(scored, RerankedDoc{Index: i, Text: text, Score: sigmoid(logit)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return rerankReply{docs: scored}
}

func (w *RerankWorker) setError(err error) {
	w.mu.Lock()
	w.state = StateError
	w.loadErr = err
	w.mu.Unlock()
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
