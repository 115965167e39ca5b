package search

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"tbr/book"
)

// Result is one streamed match tagged with the worker generation that
// produced it. Consumers drop results whose generation is not current.
type Result struct {
	Match Match
	Gen   uint64
	Done  bool // last message of a completed scan
	Err   error
}

// Worker runs searches off the UI loop. Starting a new search cancels the
// running one; every emitted result carries the generation of the search
// that produced it so late arrivals from a cancelled scan are ignored
// instead of corrupting the fresh result list.
type Worker struct {
	doc     *book.Document
	log     *zap.Logger
	results chan Result

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates an idle worker. The results channel is buffered so the
// scanning goroutine is not lock-stepped to the UI.
func NewWorker(doc *book.Document, log *zap.Logger) *Worker {
	return &Worker{
		doc:     doc,
		log:     log,
		results: make(chan Result, 64),
	}
}

// Results is the stream of matches from the active scan.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Start begins a new scan from pos, cancelling any scan in flight. It
// returns the generation of the new scan, or an error when the query does
// not compile (the running scan is left untouched then).
func (w *Worker) Start(ctx context.Context, q Query, pos book.Position) (uint64, error) {
	cur, err := NewCursor(w.doc, q, pos)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.gen++
	gen := w.gen
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.scan(ctx, cur, gen)
	return gen, nil
}

// Cancel stops the active scan, if any.
func (w *Worker) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// Close cancels the active scan and waits for the goroutine to drain.
func (w *Worker) Close() {
	w.Cancel()
	w.wg.Wait()
}

func (w *Worker) scan(ctx context.Context, cur *Cursor, gen uint64) {
	defer w.wg.Done()
	for {
		m, ok, err := cur.Next(ctx)
		switch {
		case err != nil:
			if !errors.Is(err, context.Canceled) {
				w.log.Warn("search scan failed", zap.Uint64("gen", gen), zap.Error(err))
				w.emit(ctx, Result{Gen: gen, Err: err, Done: true})
			}
			return
		case !ok:
			w.emit(ctx, Result{Gen: gen, Done: true})
			return
		default:
			if !w.emit(ctx, Result{Match: m, Gen: gen}) {
				return
			}
		}
	}
}

func (w *Worker) emit(ctx context.Context, r Result) bool {
	select {
	case w.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
