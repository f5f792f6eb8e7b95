package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// sessionSaveTimeout bounds the final statistics write after the loop ends.
const sessionSaveTimeout = 5 * time.Second

// VideoSource produces frames. Capture returns io.EOF when a finite source is exhausted.
type VideoSource interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) (image.Image, error)
	Release() error
	String() string
}

// SessionStore persists recognitions and session statistics.
type SessionStore interface {
	LogRecognition(ctx context.Context, log database.RecognitionLog) error
	SaveSession(ctx context.Context, rec database.SessionRecord) error
}

// FrameEvent is published to observers after every loop iteration.
type FrameEvent struct {
	SessionID string
	Frame     image.Image
	Result    FrameResult
	FPS       float64
	Recovery  bool
	Stable    bool
	Users     int
	Time      time.Time
}

// Observer receives frame events. It runs on the loop goroutine and must not block.
type Observer func(FrameEvent)

// Session is one run of the recognition loop over a video source.
type Session struct {
	ID string

	cfg       config.Config
	source    VideoSource
	processor *Processor
	perf      *PerformanceMonitor
	stability *StabilityMonitor
	buffer    *FrameBuffer
	matcher   *facematch.Matcher
	store     SessionStore
	memory    *MemorySampler
	limiter   *rate.Limiter
	observers []Observer
	logger    *slog.Logger

	mu         sync.Mutex
	stats      counters
	startedAt  time.Time
	running    bool
	unstable   bool
	lastLogged map[string]time.Time
}

type counters struct {
	totalFrames         int64
	recognitionAttempts int64
	recognitions        int64
	unknownFaces        int64
}

// SessionDeps are the collaborators of a Session.
type SessionDeps struct {
	Source    VideoSource
	Processor *Processor
	Perf      *PerformanceMonitor
	Stability *StabilityMonitor
	Matcher   *facematch.Matcher
	Store     SessionStore
	Logger    *slog.Logger
	Observers []Observer
}

// NewSession creates a session with a fresh ID and frame buffer.
func NewSession(cfg config.Config, deps SessionDeps) *Session {
	id := uuid.New().String()
	return &Session{
		ID:         id,
		cfg:        cfg,
		source:     deps.Source,
		processor:  deps.Processor,
		perf:       deps.Perf,
		stability:  deps.Stability,
		buffer:     NewFrameBuffer(),
		matcher:    deps.Matcher,
		store:      deps.Store,
		memory:     NewMemorySampler(),
		limiter:    rate.NewLimiter(rate.Every(cfg.Stability.ResetDelay), 1),
		observers:  deps.Observers,
		logger:     logging.OrDefault(deps.Logger).With("session_id", id),
		lastLogged: make(map[string]time.Time),
	}
}

// Run opens the source and processes frames until ctx is cancelled, the source
// is exhausted or the source fails to reopen fatally. The source is released and
// the session statistics are saved on every exit path.
func (s *Session) Run(ctx context.Context) (rec database.SessionRecord, err error) {
	if err := s.source.Open(ctx); err != nil {
		return database.SessionRecord{}, fmt.Errorf("opening video source %s: %w", s.source, err)
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("recognition session started", "source", s.source.String())

	status := database.SessionCompleted
	defer func() {
		if r := recover(); r != nil {
			status = database.SessionFailed
			err = fmt.Errorf("recognition loop panic: %v", r)
		}
		if relErr := s.source.Release(); relErr != nil {
			s.logger.Warn("releasing video source", "error", relErr)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		rec = s.Record(status)
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionSaveTimeout)
		defer cancel()
		if s.store != nil {
			if saveErr := s.store.SaveSession(saveCtx, rec); saveErr != nil {
				s.logger.Error("saving session statistics", "error", saveErr)
			}
		}
		s.logger.Info("recognition session ended", "status", status, "frames", rec.TotalFrames,
			"average_fps", rec.AverageFPS, "recognitions", rec.Recognitions)
	}()

	for {
		if ctx.Err() != nil {
			status = database.SessionCancelled
			return rec, nil
		}

		done, err := s.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				status = database.SessionCancelled
				return rec, nil
			}
			status = database.SessionFailed
			return rec, err
		}
		if done {
			return rec, nil
		}
	}
}

// step runs one capture, process and bookkeeping cycle. done is true when the
// source is exhausted.
func (s *Session) step(ctx context.Context) (done bool, err error) {
	start := time.Now()

	frame, capErr := s.source.Capture(ctx)
	if errors.Is(capErr, io.EOF) {
		return true, nil
	}
	if capErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.stability.RecordFailure()
		s.logger.Debug("frame capture failed", "error", capErr)
		frame = nil
	}

	// A substituted frame is shown again but only re-processed when the capture
	// itself succeeded with an unusable frame.
	usable := s.buffer.Submit(frame)

	var result FrameResult
	if usable != nil && capErr == nil {
		result = s.processor.Process(ctx, usable)
	}
	s.account(ctx, result)

	fps := 0.0
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		fps = 1 / elapsed
	}
	s.perf.Record(Sample{
		FPS:          fps,
		ProcessingMS: float64(result.Duration) / float64(time.Millisecond),
		MemoryMB:     s.memory.SampleMB(),
	})

	stable := s.stability.IsStable()
	if !stable {
		if err := s.recover(ctx); err != nil {
			return false, err
		}
	} else if s.setUnstable(false) {
		s.logger.Info("pipeline stable again")
	}

	s.publish(FrameEvent{
		SessionID: s.ID,
		Frame:     usable,
		Result:    result,
		FPS:       fps,
		Recovery:  s.perf.RecoveryMode(),
		Stable:    stable,
		Users:     len(s.matcher.Store().Labels()),
		Time:      time.Now(),
	})
	return false, nil
}

// account updates counters and persists throttled recognition logs.
func (s *Session) account(ctx context.Context, result FrameResult) {
	now := time.Now()

	s.mu.Lock()
	s.stats.totalFrames++
	s.stats.recognitionAttempts += int64(len(result.Results))
	var toLog []facematch.Result
	for _, r := range result.Results {
		if !r.IsMatch {
			s.stats.unknownFaces++
			continue
		}
		s.stats.recognitions++
		if last, ok := s.lastLogged[r.Label]; ok && now.Sub(last) < constants.RecognitionLogInterval {
			continue
		}
		s.lastLogged[r.Label] = now
		toLog = append(toLog, r)
	}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	for _, r := range toLog {
		err := s.store.LogRecognition(ctx, database.RecognitionLog{
			SessionID:  s.ID,
			UserName:   r.Label,
			Confidence: r.Confidence,
			IsMatch:    r.IsMatch,
			CreatedAt:  now,
		})
		if err != nil {
			s.logger.Warn("logging recognition", "user", r.Label, "error", err)
		}
	}
}

// recover applies the recovery action matching the current error streak.
func (s *Session) recover(ctx context.Context) error {
	if s.setUnstable(true) {
		s.logger.Warn("pipeline unstable", "consecutive_errors", s.stability.ConsecutiveErrors(),
			"last_success", s.stability.LastSuccess())
	}

	action := s.stability.RecoveryAction()
	switch action {
	case RecoveryClearCache:
		s.processor.ClearCache()
	case RecoveryResetDevice:
		s.processor.ClearCache()
		if err := s.resetDevice(ctx); err != nil {
			return err
		}
	default:
		return nil
	}
	metrics.RecoveryActions.WithLabelValues(action.String()).Inc()
	s.logger.Warn("applied recovery action", "action", action.String())
	return nil
}

// resetDevice releases and reopens the source, blocking for the reset delay in between.
// A failed reopen counts as another failure; the next unstable frame retries.
func (s *Session) resetDevice(ctx context.Context) error {
	if err := s.source.Release(); err != nil {
		s.logger.Warn("releasing video source for reset", "error", err)
	}

	s.limiter.Allow()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for device reset: %w", err)
	}

	if err := s.source.Open(ctx); err != nil {
		s.stability.RecordFailure()
		s.logger.Warn("reopening video source", "error", err)
	}
	return nil
}

func (s *Session) setUnstable(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.unstable != v
	s.unstable = v
	return changed
}

func (s *Session) publish(ev FrameEvent) {
	for _, o := range s.observers {
		o(ev)
	}
}
