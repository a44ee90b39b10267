package scheduler

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matifariasc/vosk-speech/internal/cuos"
	"github.com/matifariasc/vosk-speech/internal/events"
	"github.com/matifariasc/vosk-speech/internal/store"
	"github.com/matifariasc/vosk-speech/internal/transcriber"
	"github.com/matifariasc/vosk-speech/internal/transcript"
)

const defaultLookback = 50

// Options configure the ingestion scheduler.
type Options struct {
	MediaBase string
	Channels  []string
	Workers   int
	Interval  time.Duration // <= 0 runs a single cycle
	Lookback  int
	Retention time.Duration
}

// Scheduler keeps each channel's timeline fresh. A time-gated producer
// enqueues one item per channel per cycle onto a FIFO queue, and a fixed
// worker pool shared across channels drains it. The next cycle starts only
// after the previous one has fully drained, so queue growth is bounded by
// one item per channel.
type Scheduler struct {
	opts    Options
	store   *store.Store
	backend transcriber.Transcriber
	events  *events.Publisher
	sender  *cuos.Sender
	logger  *slog.Logger
}

type job struct {
	id      string
	cycle   int
	channel string
	done    *sync.WaitGroup
}

func New(opts Options, st *store.Store, backend transcriber.Transcriber, pub *events.Publisher, sender *cuos.Sender, logger *slog.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	if opts.Retention <= 0 {
		opts.Retention = 48 * time.Hour
	}
	return &Scheduler{
		opts:    opts,
		store:   st,
		backend: backend,
		events:  pub,
		sender:  sender,
		logger:  logger,
	}
}

// Run executes ingestion cycles until the context is cancelled. Cancellation
// stops future cycles; items already queued or in flight finish first, and
// all workers are joined before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	jobs := make(chan job, len(s.opts.Channels))

	var workers sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := range jobs {
				s.process(j)
				j.done.Done()
			}
		}()
	}

	s.logger.Info("scheduler started",
		"channels", len(s.opts.Channels),
		"workers", s.opts.Workers,
		"interval", s.opts.Interval.String(),
	)

	cycle := 0
	for ctx.Err() == nil {
		cycle++

		var drained sync.WaitGroup
		for _, channel := range s.opts.Channels {
			j := job{id: shortID(), cycle: cycle, channel: channel, done: &drained}
			drained.Add(1)
			s.logger.Debug("job queued", "job", j.id, "cycle", cycle, "channel", channel)
			jobs <- j
		}
		drained.Wait()

		if s.opts.Interval <= 0 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.opts.Interval):
		}
	}

	close(jobs)
	workers.Wait()
	s.logger.Info("scheduler stopped", "cycles", cycle)
	return ctx.Err()
}

// process handles one (cycle, channel) item: select at most one pending
// file, transcribe it and commit the result. Failures are logged and leave
// the file pending for the next cycle; they never cross channel boundaries.
func (s *Scheduler) process(j job) {
	log := s.logger.With("job", j.id, "cycle", j.cycle, "channel", j.channel)

	// In-flight work is never cancelled: shutdown drains the queue instead.
	ctx := context.Background()

	tl, err := s.store.LoadTimeline(j.channel)
	if err != nil {
		log.Error("load timeline failed", "error", err)
		return
	}
	lg, err := s.store.LoadLedger(j.channel)
	if err != nil {
		log.Error("load ledger failed", "error", err)
		return
	}

	key, ok := s.selectPending(j.channel, tl, log)
	if !ok {
		log.Debug("no pending files")
		return
	}

	log.Info("job running", "file", key.Path)
	started := time.Now()

	res, err := s.backend.Transcribe(ctx, key.Path)
	if err != nil {
		log.Error("transcription failed, file stays pending", "file", key.Path, "error", err)
		return
	}
	elapsed := time.Since(started)

	rec := buildRecord(key, res)
	tl[key.Path] = rec
	lg[key.Path] = math.Round(elapsed.Seconds()*100) / 100

	if err := s.store.Commit(j.channel, tl, lg, time.Now(), s.opts.Retention); err != nil {
		log.Error("commit failed", "file", key.Path, "error", err)
		return
	}

	log.Info("job completed",
		"file", key.Path,
		"segments", len(rec.Registros),
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)

	if err := s.events.TranscriptStored(events.StoredEvent{
		File:     key.Path,
		Channel:  key.Channel,
		Segments: len(rec.Registros),
		Duration: rec.Duration,
		StoredAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Warn("failed to publish stored event", "error", err)
	}

	if sent, err := s.sender.Send(ctx, cuos.BuildPayloads(key.Channel, key.Fecha(), rec)); err != nil {
		log.Warn("cuos delivery failed", "sent", sent, "error", err)
	} else if sent > 0 {
		log.Info("cuos delivery done", "sent", sent)
	}
}

// selectPending picks the single most recent eligible file for a channel.
// Files are sorted by embedded capture time descending; the newest is
// skipped unless its extension marks a closed recording, the lookback caps
// how far back a cycle considers, and already-tracked keys drop out.
func (s *Scheduler) selectPending(channel string, tl store.Timeline, log *slog.Logger) (transcript.Key, bool) {
	dir := filepath.Join(s.opts.MediaBase, channel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("list channel directory failed", "dir", dir, "error", err)
		return transcript.Key{}, false
	}

	var keys []transcript.Key
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, err := transcript.ParseKey(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Debug("skipping file outside naming convention", "name", e.Name(), "error", err)
			continue
		}
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Captured.After(keys[j].Captured)
	})

	if len(keys) > 0 && !keys[0].Finalized() {
		keys = keys[1:]
	}
	if len(keys) > s.opts.Lookback {
		keys = keys[:s.opts.Lookback]
	}

	for _, k := range keys {
		if !k.Finalized() {
			continue
		}
		if _, tracked := tl[k.Path]; tracked {
			continue
		}
		return k, true
	}
	return transcript.Key{}, false
}

// buildRecord converts transcriber output (offsets in seconds) into a
// normalized record with absolute time-of-day stamps anchored at the file's
// capture time.
func buildRecord(key transcript.Key, res transcriber.Result) transcript.FileRecord {
	rec := transcript.FileRecord{
		Duration:  res.Duration,
		Registros: make([]transcript.Segment, 0, len(res.Segments)),
	}
	for _, seg := range res.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := key.Captured.Add(time.Duration(seg.Start * float64(time.Second)))
		end := key.Captured.Add(time.Duration(seg.End * float64(time.Second)))
		rec.Registros = append(rec.Registros, transcript.Segment{
			Texto:  text,
			Inicio: start.Format(transcript.ClockLayout),
			Fin:    end.Format(transcript.ClockLayout),
			Fecha:  start.Format("2006-01-02"),
			Medio:  key.Channel,
		})
	}
	transcript.Canonicalize(&rec, key.Fecha())
	return rec
}

func shortID() string {
	return uuid.New().String()[:8]
}
