// Package scheduler runs one job per configuration on a fixed pool of
// workers, starting a configuration only once every configuration it depends
// on is finished.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/table"
)

// ErrStuck is returned when work remains but none of it can ever start.
var ErrStuck = errors.New("no configuration can start")

// Job computes one configuration. finished is a private snapshot of every
// table published so far. The returned reader is published to later jobs
// and must not change afterwards.
type Job func(ctx context.Context, worker int, id material.ID, finished table.Arena) (table.Reader, error)

// Config configures a run.
type Config struct {
	Logger  zerolog.Logger
	Workers int
	// Finished holds tables available before the run starts.
	Finished table.Arena
}

type scheduler struct {
	log zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	remaining []material.ID
	deps      map[material.ID][]material.ID
	finished  table.Arena
	running   int
	// failed is set once a job fails. Idle workers then exit without an
	// error of their own.
	failed bool
}

// Run computes every configuration of work. A configuration waits for those
// of its dependencies that are in work; the others are expected in
// cfg.Finished or are treated as absent by the job. Work is claimed in list
// order. The first failing job stops the run; its error is returned along
// with the tables finished so far.
func Run(ctx context.Context, cfg Config, work []material.ID, job Job) (table.Arena, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	s := &scheduler{
		log:       cfg.Logger,
		remaining: slices.Clone(work),
		deps:      Dependencies(work),
		finished:  cfg.Finished.Clone(),
	}
	s.cond = sync.NewCond(&s.mu)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	start := time.Now()
	for w := range workers {
		g.Go(func() error { return s.worker(gctx, w, job) })
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.finished, err
	}
	s.log.Info().Int("tables", len(work)).Int("workers", workers).Dur("elapsed", time.Since(start)).Msg("schedule complete")
	return s.finished, nil
}

func (s *scheduler) worker(ctx context.Context, w int, job Job) error {
	log := s.log.With().Int("worker", w).Logger()
	log.Debug().Msg("worker started")
	for {
		id, snapshot, ok, err := s.claim(ctx)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug().Msg("worker finished")
			return nil
		}

		log.Info().Str("config", id.Name()).Str("id", id.String()).Msg("table started")
		start := time.Now()
		r, err := runJob(ctx, job, w, id, snapshot)
		if err != nil {
			s.release()
			return fmt.Errorf("%s: %w", id.Name(), err)
		}
		left := s.publish(id, r)
		log.Info().Str("config", id.Name()).Dur("elapsed", time.Since(start)).Int("remaining", left).Msg("table finished")
	}
}

// claim removes the first ready configuration from the list and returns it
// with a snapshot of the finished tables. ok is false once the list is empty.
func (s *scheduler) claim(ctx context.Context) (material.ID, table.Arena, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, false, err
		}
		if len(s.remaining) == 0 || s.failed {
			return 0, nil, false, nil
		}
		if i := slices.IndexFunc(s.remaining, s.ready); i >= 0 {
			id := s.remaining[i]
			s.remaining = slices.Delete(s.remaining, i, i+1)
			s.running++
			return id, s.finished.Clone(), true, nil
		}
		if s.running == 0 {
			return 0, nil, false, fmt.Errorf("%w: %d remaining", ErrStuck, len(s.remaining))
		}
		s.cond.Wait()
	}
}

func (s *scheduler) ready(id material.ID) bool {
	return lo.EveryBy(s.deps[id], func(d material.ID) bool {
		_, ok := s.finished[d]
		return ok
	})
}

func (s *scheduler) publish(id material.ID, r table.Reader) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[id] = r
	s.running--
	s.cond.Broadcast()
	return len(s.remaining)
}

// release gives up a claimed configuration after its job failed.
func (s *scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running--
	s.failed = true
	s.cond.Broadcast()
}

// runJob turns a panicking job into an error. Contract violations inside the
// scorer panic; the run must still stop cleanly.
func runJob(ctx context.Context, job Job, w int, id material.ID, finished table.Arena) (r table.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v\n%s", p, debug.Stack())
		}
	}()
	r, err = job(ctx, w, id, finished)
	if err == nil && r == nil {
		err = errors.New("job returned no table")
	}
	return r, err
}

// Dependencies returns the dependencies of each configuration of work,
// restricted to work.
func Dependencies(work []material.ID) map[material.ID][]material.ID {
	inWork := lo.SliceToMap(work, func(id material.ID) (material.ID, bool) { return id, true })
	deps := make(map[material.ID][]material.ID, len(work))
	for _, id := range work {
		deps[id] = lo.Filter(material.Dependencies(id), func(d material.ID, _ int) bool {
			return inWork[d] && d != id
		})
	}
	return deps
}

// Plan groups work into waves: every configuration of a wave depends only on
// configurations of earlier waves. It fails when the dependencies form a
// cycle.
func Plan(work []material.ID) ([][]material.ID, error) {
	deps := Dependencies(work)
	level := make(map[material.ID]int, len(work))
	var waves [][]material.ID
	for len(level) < len(work) {
		var wave []material.ID
		for _, id := range work {
			if _, done := level[id]; done {
				continue
			}
			if lo.EveryBy(deps[id], func(d material.ID) bool {
				l, ok := level[d]
				return ok && l < len(waves)
			}) {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return waves, fmt.Errorf("%w: dependency cycle among %d configurations", ErrStuck, len(work)-len(level))
		}
		for _, id := range wave {
			level[id] = len(waves)
		}
		waves = append(waves, wave)
	}
	return waves, nil
}
