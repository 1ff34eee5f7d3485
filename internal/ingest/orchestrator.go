package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptorun/core/internal/checkpoint"
	"github.com/cryptorun/core/internal/clean"
	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
	"github.com/cryptorun/core/internal/secrets"
	"github.com/cryptorun/core/internal/store"
)

// Bus topics the orchestrator publishes progress under.
const (
	TopicStart    = "ingest.start"
	TopicProgress = "ingest.progress"
	TopicComplete = "ingest.complete"
	TopicError    = "ingest.error"
	TopicSkip     = "ingest.skip"
)

// Progress is the payload published under every ingest.* topic.
type Progress struct {
	Task       Task
	Cursor     time.Time
	Downloaded int64
	Err        error
}

// Config tunes the orchestrator's pacing.
type Config struct {
	Concurrency  int           // tasks in flight at once
	BatchSize    int           // records requested per page
	RequestDelay time.Duration // pause between pages of one task

	// Redactor, when set, scrubs credentials from error messages before
	// they reach checkpoints, logs, or events.
	Redactor *secrets.Redactor
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  3,
		BatchSize:    1000,
		RequestDelay: 200 * time.Millisecond,
	}
}

// Orchestrator owns one run of a download plan. It is the single writer
// for every checkpoint key it touches for the duration of the run.
type Orchestrator struct {
	cfg     Config
	sources map[string]Source
	cleaner *clean.Cleaner
	sink    store.Store
	ckpt    checkpoint.Store
	bus     *eventbus.Bus

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New wires an Orchestrator. sources maps venue name to that venue's
// range-fetch implementation; tasks for venues with no source fail rather
// than silently skipping.
func New(cfg Config, sources map[string]Source, sink store.Store, ckpt checkpoint.Store, bus *eventbus.Bus) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Orchestrator{
		cfg:     cfg,
		sources: sources,
		cleaner: clean.New(),
		sink:    sink,
		ckpt:    ckpt,
		bus:     bus,
		stopCh:  make(chan struct{}),
	}
}

// Stop requests a graceful halt: every in-flight page finishes, its
// checkpoint is written, and no further pages are fetched.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// Run expands plan into tasks and drives them to completion with bounded
// concurrency. Per-task errors are written to that task's checkpoint and
// published as ingest.error events; they never abort the other tasks. The
// returned error is non-nil when the plan cannot be expanded into tasks
// or when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) error {
	tasks, err := o.expand(ctx, plan)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		if ctx.Err() != nil || o.stopped() {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runTask(ctx, t)
		}(task)
	}

	wg.Wait()
	return ctx.Err()
}

// expand builds the task list from the plan's Cartesian product, applying
// checkpoint resume: a task with a non-failed checkpoint restarts at
// lastTimestamp + 1ms, and a task already past its end time is skipped.
func (o *Orchestrator) expand(ctx context.Context, plan Plan) ([]Task, error) {
	interval := plan.Interval
	if interval == "" {
		interval = "1m"
	}

	var tasks []Task
	for _, venue := range plan.Venues {
		if _, ok := o.sources[venue]; !ok {
			return nil, fmt.Errorf("no ingest source registered for venue %q", venue)
		}
		for _, symbol := range plan.Symbols {
			for _, dt := range plan.DataTypes {
				t := Task{
					Venue: venue, Symbol: symbol, DataType: dt,
					Start: plan.StartTime, End: plan.EndTime, Interval: interval,
				}

				cp, err := o.ckpt.Get(ctx, venue, symbol, string(dt))
				if err != nil {
					return nil, fmt.Errorf("load checkpoint for %s/%s/%s: %w", venue, symbol, dt, err)
				}
				if cp != nil && cp.Status != checkpoint.StatusFailed && cp.LastTimestamp > 0 {
					t.Start = time.UnixMilli(cp.LastTimestamp + 1).UTC()
				}

				if !t.Start.Before(t.End) {
					o.publish(TopicSkip, Progress{Task: t, Cursor: t.Start})
					continue
				}
				tasks = append(tasks, t)
			}
		}
	}
	return tasks, nil
}

// runTask executes one task's pagination loop to completion, stop, or
// first error.
func (o *Orchestrator) runTask(ctx context.Context, t Task) {
	o.publish(TopicStart, Progress{Task: t, Cursor: t.Start})
	log.Info().
		Str("venue", t.Venue).Str("symbol", t.Symbol).Str("data_type", string(t.DataType)).
		Time("start", t.Start).Time("end", t.End).
		Msg("ingest task started")

	cursor := t.Start
	var total int64

	for cursor.Before(t.End) && ctx.Err() == nil && !o.stopped() {
		pageEnd := cursor.Add(t.window(o.cfg.BatchSize))
		if pageEnd.After(t.End) {
			pageEnd = t.End
		}

		inserted, last, err := o.fetchPage(ctx, t, cursor, pageEnd)
		if err != nil {
			o.failTask(ctx, t, cursor, total, err)
			return
		}

		if inserted == 0 {
			// Sparse series keep scanning forward; dense series are done.
			if t.DataType == DataTypeAggTrade {
				cursor = pageEnd
				continue
			}
			break
		}

		total += int64(inserted)
		cursor = last.Add(t.step())

		// The checkpoint records the cursor, not the last record's own
		// timestamp, so a resumed run restarts at cursor+1 and never
		// re-fetches a persisted page.
		if err := o.saveCheckpoint(ctx, t, checkpoint.StatusRunning, cursor.UnixMilli(), total, ""); err != nil {
			o.failTask(ctx, t, cursor, total, err)
			return
		}
		o.publish(TopicProgress, Progress{Task: t, Cursor: cursor, Downloaded: total})

		if o.cfg.RequestDelay > 0 {
			select {
			case <-time.After(o.cfg.RequestDelay):
			case <-ctx.Done():
			case <-o.stopCh:
			}
		}
	}

	if ctx.Err() != nil || o.stopped() {
		// Leave status running so the next run resumes from the checkpoint.
		return
	}

	if err := o.saveCheckpoint(ctx, t, checkpoint.StatusCompleted, cursor.UnixMilli(), total, ""); err != nil {
		o.failTask(ctx, t, cursor, total, err)
		return
	}
	o.publish(TopicComplete, Progress{Task: t, Cursor: cursor, Downloaded: total})
	log.Info().
		Str("venue", t.Venue).Str("symbol", t.Symbol).Str("data_type", string(t.DataType)).
		Int64("downloaded", total).
		Msg("ingest task completed")
}

// fetchPage fetches, cleans, and persists one page, returning the number
// of rows written and the last persisted record's timestamp.
func (o *Orchestrator) fetchPage(ctx context.Context, t Task, start, end time.Time) (int, time.Time, error) {
	src := o.sources[t.Venue]

	switch t.DataType {
	case DataTypeKline, DataTypeMarkPrice:
		var raw []schema.Kline
		var err error
		if t.DataType == DataTypeKline {
			raw, err = src.FetchKlinesRange(ctx, t.Symbol, t.Interval, start, end, o.cfg.BatchSize)
		} else {
			raw, err = src.FetchMarkKlinesRange(ctx, t.Symbol, t.Interval, start, end, o.cfg.BatchSize)
		}
		if err != nil {
			return 0, time.Time{}, err
		}
		cleaned, warns := o.cleaner.CleanKlines(raw)
		o.logWarnings(t, warns)
		if len(cleaned) == 0 {
			return 0, time.Time{}, nil
		}
		if t.DataType == DataTypeKline {
			err = o.sink.InsertKlines(ctx, cleaned)
		} else {
			err = o.sink.InsertMarkKlines(ctx, cleaned)
		}
		if err != nil {
			return 0, time.Time{}, err
		}
		return len(cleaned), cleaned[len(cleaned)-1].OpenTime, nil

	case DataTypeFundingRate:
		raw, err := src.FetchFundingRateHistory(ctx, t.Symbol, start, end)
		if err != nil {
			return 0, time.Time{}, err
		}
		cleaned, warns := o.cleaner.CleanFundingRates(raw)
		o.logWarnings(t, warns)
		if len(cleaned) == 0 {
			return 0, time.Time{}, nil
		}
		if err := o.sink.InsertFundingRates(ctx, cleaned); err != nil {
			return 0, time.Time{}, err
		}
		return len(cleaned), cleaned[len(cleaned)-1].Timestamp, nil

	case DataTypeOpenInterest:
		raw, err := src.FetchOpenInterestHistory(ctx, t.Symbol, start, end, o.cfg.BatchSize)
		if err != nil {
			return 0, time.Time{}, err
		}
		cleaned, warns := o.cleaner.CleanOpenInterest(raw)
		o.logWarnings(t, warns)
		if len(cleaned) == 0 {
			return 0, time.Time{}, nil
		}
		if err := o.sink.InsertOpenInterest(ctx, cleaned); err != nil {
			return 0, time.Time{}, err
		}
		return len(cleaned), cleaned[len(cleaned)-1].Timestamp, nil

	case DataTypeAggTrade:
		raw, err := src.FetchAggTrades(ctx, t.Symbol, start, end)
		if err != nil {
			return 0, time.Time{}, err
		}
		cleaned, warns := o.cleaner.CleanTrades(raw)
		o.logWarnings(t, warns)
		if len(cleaned) == 0 {
			return 0, time.Time{}, nil
		}
		if err := o.sink.InsertTrades(ctx, cleaned); err != nil {
			return 0, time.Time{}, err
		}
		return len(cleaned), cleaned[len(cleaned)-1].Timestamp, nil

	default:
		return 0, time.Time{}, fmt.Errorf("unsupported data type %q", t.DataType)
	}
}

func (o *Orchestrator) failTask(ctx context.Context, t Task, cursor time.Time, total int64, cause error) {
	msg := cause.Error()
	if o.cfg.Redactor != nil {
		msg = o.cfg.Redactor.Redact(msg)
	}

	log.Error().
		Str("venue", t.Venue).Str("symbol", t.Symbol).Str("data_type", string(t.DataType)).
		Str("error", msg).
		Msg("ingest task failed")

	if err := o.saveCheckpoint(ctx, t, checkpoint.StatusFailed, cursor.UnixMilli(), total, msg); err != nil {
		log.Error().Err(err).Msg("failed to persist failed checkpoint")
	}
	o.publish(TopicError, Progress{Task: t, Cursor: cursor, Downloaded: total, Err: cause})
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, t Task, status checkpoint.Status, lastTS, total int64, errMsg string) error {
	venue, symbol, dataType := t.Key()
	return o.ckpt.Save(ctx, checkpoint.Checkpoint{
		Venue:           venue,
		Symbol:          symbol,
		DataType:        dataType,
		LastTimestamp:   lastTS,
		UpdatedAt:       time.Now().UnixMilli(),
		Status:          status,
		DownloadedCount: total,
		ErrorMessage:    errMsg,
	})
}

func (o *Orchestrator) logWarnings(t Task, warns []clean.Warning) {
	for _, w := range warns {
		log.Warn().
			Str("venue", t.Venue).Str("symbol", t.Symbol).Str("data_type", string(t.DataType)).
			Int("index", w.Index).Str("reason", w.Reason).
			Msg("dropped record during cleaning")
	}
}

func (o *Orchestrator) publish(topic string, p Progress) {
	if o.bus != nil {
		o.bus.Publish(eventbus.Event{Topic: topic, Payload: p})
	}
}
