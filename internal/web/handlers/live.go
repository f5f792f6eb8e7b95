package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/overlay"
	"github.com/kozaktomas/facewatch/internal/pipeline"
)

// LiveSession is the view of a recognition session the hub reports on.
type LiveSession interface {
	Status() pipeline.Status
}

// LiveFace is one face of a live frame event.
type LiveFace struct {
	Name       string        `json:"name"`
	Confidence float64       `json:"confidence"`
	IsMatch    bool          `json:"is_match"`
	Box        facematch.Box `json:"box"`
}

// LiveFrame is the payload of a "frame" event.
type LiveFrame struct {
	SessionID    string     `json:"session_id"`
	Time         time.Time  `json:"time"`
	FPS          float64    `json:"fps"`
	RecoveryMode bool       `json:"recovery_mode"`
	Stable       bool       `json:"stable"`
	Users        int        `json:"users"`
	Skipped      bool       `json:"skipped"`
	Failed       bool       `json:"failed"`
	ProcessingMS float64    `json:"processing_ms"`
	Faces        []LiveFace `json:"faces"`
}

// LiveHub connects a running recognition session to the dashboard. Observe is
// registered as a pipeline observer; the HTTP endpoints read what it collected.
type LiveHub struct {
	EventBroadcaster

	mu      sync.RWMutex
	session LiveSession
	last    *pipeline.FrameEvent
	logger  *slog.Logger
}

// NewLiveHub creates a hub with no attached session.
func NewLiveHub(logger *slog.Logger) *LiveHub {
	return &LiveHub{logger: logging.OrDefault(logger)}
}

// Attach makes s the reported session and forgets the previous frame.
func (h *LiveHub) Attach(s LiveSession) {
	h.mu.Lock()
	h.session = s
	h.last = nil
	h.mu.Unlock()

	h.SendEvent(Event{Type: "session_started", Data: s.Status()})
}

// Finish publishes the final statistics of the attached session.
func (h *LiveHub) Finish(rec database.SessionRecord) {
	h.SendEvent(Event{Type: "session_ended", Data: rec})
}

// Observe records the latest frame and fans it out to listeners. It never blocks.
func (h *LiveHub) Observe(ev pipeline.FrameEvent) {
	h.mu.Lock()
	h.last = &ev
	h.mu.Unlock()

	if h.Listeners() == 0 {
		return
	}
	h.SendEvent(Event{Type: "frame", Data: liveFrame(ev)})
}

func liveFrame(ev pipeline.FrameEvent) LiveFrame {
	out := LiveFrame{
		SessionID:    ev.SessionID,
		Time:         ev.Time,
		FPS:          ev.FPS,
		RecoveryMode: ev.Recovery,
		Stable:       ev.Stable,
		Users:        ev.Users,
		Skipped:      ev.Result.Skipped,
		Failed:       ev.Result.Failed,
		ProcessingMS: float64(ev.Result.Duration.Microseconds()) / 1000,
		Faces:        make([]LiveFace, 0, len(ev.Result.Results)),
	}
	for i, res := range ev.Result.Results {
		if i >= len(ev.Result.Boxes) {
			break
		}
		out.Faces = append(out.Faces, LiveFace{
			Name:       res.Label,
			Confidence: res.Confidence,
			IsMatch:    res.IsMatch,
			Box:        ev.Result.Boxes[i],
		})
	}
	return out
}

func (h *LiveHub) status() pipeline.Status {
	h.mu.RLock()
	s := h.session
	h.mu.RUnlock()

	if s == nil {
		return pipeline.Status{}
	}
	return s.Status()
}

func (h *LiveHub) lastEvent() (pipeline.FrameEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return pipeline.FrameEvent{}, false
	}
	return *h.last, true
}

// Status returns the attached session status. Running is false when none is attached.
func (h *LiveHub) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// Events streams session and frame events as server-sent events.
func (h *LiveHub) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, &h.EventBroadcaster, h.status())
}

// Snapshot returns the latest frame as JPEG, annotated with boxes, labels and the
// status line. When annotation fails the raw frame is sent and X-Overlay-Fallback is set.
func (h *LiveHub) Snapshot(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.lastEvent()
	if !ok || ev.Frame == nil {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}

	render := overlay.Draw(ev.Frame, ev.Result.Boxes, ev.Result.Results, overlay.Status{
		FPS:      ev.FPS,
		Users:    ev.Users,
		Recovery: ev.Recovery,
		Stable:   ev.Stable,
	})
	if render.Err != nil {
		if errors.Is(render.Err, overlay.ErrNoFrame) {
			respondError(w, http.StatusNotFound, "no frame available")
			return
		}
		h.logger.Debug("overlay fallback", "error", render.Err)
		w.Header().Set("X-Overlay-Fallback", "true")
	}

	data, err := fingerprint.EncodeJPEG(render.Frame, constants.SnapshotJPEGQuality)
	if err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to encode snapshot")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
