package telemetry

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Emitter publishes points to one destination.
type Emitter interface {
	Emit(ctx context.Context, p Point) error
	Close() error
}

// WriterEmitter writes each encoded point followed by a newline. The writer stays owned by
// the caller and is not closed with the emitter.
type WriterEmitter struct {
	w io.Writer
	format Format
	mu sync.Mutex
}

func NewWriterEmitter(w io.Writer, f Format) *WriterEmitter {
	return &WriterEmitter{w: w, format: f}
}

func (e *WriterEmitter) Emit(ctx context.Context, p Point) error {
	b := e.format.Encode(p)

	if b == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.w.Write(append(b, '\n'))

	return err
}

func (e *WriterEmitter) Close() error {
	return nil
}

// Multi fans a point out to several emitters concurrently. A failing emitter does not
// prevent delivery to the others.
type Multi struct {
	emitters map[string]Emitter
}

func NewMulti() *Multi {
	return &Multi{emitters: make(map[string]Emitter)}
}

func (m *Multi) Add(name string, e Emitter) {
	m.emitters[name] = e
}

func (m *Multi) Names() []string {
	names := maps.Keys(m.emitters)
	sort.Strings(names)

	return names
}

func (m *Multi) Emit(ctx context.Context, p Point) error {
	var eg errgroup.Group
	var mu sync.Mutex
	var errs []error

	for name, e := range m.emitters {
		name, e := name, e

		eg.Go(func() error {
			if err := e.Emit(ctx, p); err != nil {
				log.Debug().Str("Sink", name).Err(err).Stringer("Point", p).Msg("telemetry: emit failed")

				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	eg.Wait()

	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error

	for name, e := range m.emitters {
		if err := e.Close(); err != nil {
			log.Warn().Str("Sink", name).Err(err).Msg("telemetry: failed to close sink")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
