package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// future is resolved exactly once.
type future struct {
	done   chan struct{}
	driver Driver
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(d Driver, err error) {
	f.driver = d
	f.err = err
	close(f.done)
}

func (f *future) wait(ctx context.Context) (Driver, error) {
	select {
	case <-f.done:
		return f.driver, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Binding is the deferred handle to a model's collection. It is meant to be
// assigned once during setup; reassigning while operations are in flight may
// let them observe either handle.
type Binding struct {
	mu          sync.RWMutex
	collection  *future
	indexes     *future
	specs       []IndexSpec
	concurrency int
	onReady     func(ctx context.Context, d Driver) error
	log         zerolog.Logger
}

func newBinding(specs []IndexSpec, concurrency int, log zerolog.Logger) *Binding {
	return &Binding{specs: specs, concurrency: concurrency, log: log}
}

// Set binds d synchronously.
func (b *Binding) Set(d Driver) {
	b.SetFunc(func(context.Context) (Driver, error) {
		return d, nil
	})
}

// SetFunc binds the collection returned by fn. fn runs in its own goroutine;
// operations issued meanwhile wait for it.
func (b *Binding) SetFunc(fn func(ctx context.Context) (Driver, error)) {
	collection := newFuture()
	indexes := newFuture()

	b.mu.Lock()
	b.collection = collection
	b.indexes = indexes
	onReady := b.onReady
	b.mu.Unlock()

	go func() {
		ctx := context.Background()
		d, err := fn(ctx)
		if err == nil && d == nil {
			err = ErrNotBound
		}

		if err != nil {
			b.log.Error().Err(err).Msg("failed to resolve collection")
		} else {
			b.log.Debug().Str("collection", d.Name()).Msg("collection ready")
		}

		collection.resolve(d, err)
		if err != nil {
			indexes.resolve(nil, err)
			return
		}

		// Seeding runs even when an index failed; both failures are reported.
		var readyErr *multierror.Error
		if err := b.ensureIndexes(ctx, d); err != nil {
			readyErr = multierror.Append(readyErr, err)
		}
		if onReady != nil {
			if err := onReady(ctx, d); err != nil {
				readyErr = multierror.Append(readyErr, err)
			}
		}

		indexes.resolve(d, readyErr.ErrorOrNil())
	}()
}

// Get waits until the collection is resolved.
func (b *Binding) Get(ctx context.Context) (Driver, error) {
	b.mu.RLock()
	collection := b.collection
	b.mu.RUnlock()

	if collection == nil {
		return nil, ErrNotBound
	}

	return collection.wait(ctx)
}

// IndexesReady waits until every configured index of the current binding has
// been created and returns the aggregated creation errors.
func (b *Binding) IndexesReady(ctx context.Context) error {
	b.mu.RLock()
	indexes := b.indexes
	b.mu.RUnlock()

	if indexes == nil {
		return ErrNotBound
	}

	_, err := indexes.wait(ctx)
	return err
}

func (b *Binding) ensureIndexes(ctx context.Context, d Driver) error {
	if len(b.specs) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}

	for _, spec := range b.specs {
		spec := spec
		g.Go(func() error {
			name, err := createIndex(gctx, d, spec)
			if err != nil {
				b.log.Error().Err(err).Strs("fields", spec.Fields).Msg("failed to create index")
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
				return nil
			}

			b.log.Info().Str("collection", d.Name()).Str("index", name).Strs("fields", spec.Fields).Msg("index ready")
			return nil
		})
	}

	_ = g.Wait()
	return result.ErrorOrNil()
}

func createIndex(ctx context.Context, d Driver, spec IndexSpec) (string, error) {
	model, err := spec.Model()
	if err != nil {
		return "", err
	}

	name, err := d.CreateIndex(ctx, model)
	if err != nil {
		return "", fmt.Errorf("failed to create index %v. %w", spec.Fields, err)
	}

	return name, nil
}
