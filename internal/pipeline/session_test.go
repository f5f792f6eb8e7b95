package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/mock"
)

func newTestSession(rig *testRig, src *fakeSource, store *mock.MockRepository, observers ...Observer) *Session {
	return NewSession(rig.cfg, SessionDeps{
		Source:    src,
		Processor: rig.processor,
		Perf:      rig.perf,
		Stability: rig.stability,
		Matcher:   rig.matcher,
		Store:     store,
		Observers: observers,
	})
}

func TestSession_RunsUntilSourceExhausted(t *testing.T) {
	rig := newRig(t, testConfig())
	src := &fakeSource{next: framesThenEOF(5)}
	store := mock.NewMockRepository()

	var events []FrameEvent
	sess := newTestSession(rig, src, store, func(ev FrameEvent) { events = append(events, ev) })

	rec, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rec.Status != database.SessionCompleted {
		t.Errorf("expected completed status, got %q", rec.Status)
	}
	if rec.TotalFrames != 5 || rec.Recognitions != 5 || rec.RecognitionAttempts != 5 {
		t.Errorf("unexpected counters: %+v", rec)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].Users != 1 || events[0].Frame == nil || len(events[0].Result.Results) != 1 {
		t.Errorf("unexpected event: %+v", events[0])
	}

	// Recognitions of the same user within the log interval are persisted once.
	logs := store.Logs()
	if len(logs) != 1 || logs[0].UserName != "alice" || logs[0].SessionID != sess.ID {
		t.Errorf("expected one throttled alice log, got %+v", logs)
	}

	saved, ok := store.Session(sess.ID)
	if !ok {
		t.Fatal("session statistics were not saved")
	}
	if saved.TotalFrames != 5 || saved.Source != "fake" {
		t.Errorf("unexpected saved record: %+v", saved)
	}

	if opens, releases := src.counts(); opens != 1 || releases != 1 {
		t.Errorf("expected one open and one release, got %d/%d", opens, releases)
	}
	if sess.Status().Running {
		t.Error("session should not be running after Run returns")
	}
}

func TestSession_OpenFailure(t *testing.T) {
	rig := newRig(t, testConfig())
	src := &fakeSource{next: framesThenEOF(1), openErr: errors.New("no camera")}
	store := mock.NewMockRepository()

	sess := newTestSession(rig, src, store)
	if _, err := sess.Run(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
	if _, releases := src.counts(); releases != 0 {
		t.Error("an unopened source must not be released")
	}
	if _, ok := store.Session(sess.ID); ok {
		t.Error("no statistics expected for a session that never started")
	}
}

func TestSession_Cancellation(t *testing.T) {
	rig := newRig(t, testConfig())
	frame := testFrame()
	src := &fakeSource{next: func(int) (image.Image, error) { return frame, nil }}
	store := mock.NewMockRepository()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := 0
	sess := newTestSession(rig, src, store, func(FrameEvent) {
		seen++
		if seen == 3 {
			cancel()
		}
	})

	rec, err := sess.Run(ctx)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if rec.Status != database.SessionCancelled {
		t.Errorf("expected cancelled status, got %q", rec.Status)
	}
	if rec.TotalFrames != 3 {
		t.Errorf("expected 3 frames, got %d", rec.TotalFrames)
	}
	if saved, ok := store.Session(sess.ID); !ok || saved.Status != database.SessionCancelled {
		t.Error("cancelled session should still be saved")
	}
}

func TestSession_CaptureErrorsReuseLastFrame(t *testing.T) {
	rig := newRig(t, testConfig())
	frame := testFrame()
	src := &fakeSource{next: func(i int) (image.Image, error) {
		switch {
		case i == 0:
			return frame, nil
		case i < 3:
			return nil, errCapture
		default:
			return nil, io.EOF
		}
	}}

	var frames []image.Image
	var processed []int
	sess := newTestSession(rig, src, mock.NewMockRepository(), func(ev FrameEvent) {
		frames = append(frames, ev.Frame)
		processed = append(processed, len(ev.Result.Results))
	})

	rec, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec.TotalFrames != 3 || rec.DroppedFrames != 2 || rec.ErrorCount != 2 {
		t.Errorf("unexpected counters: %+v", rec)
	}
	for i, f := range frames {
		if f != image.Image(frame) {
			t.Errorf("event %d should show the last valid frame", i)
		}
	}
	if processed[0] != 1 || processed[1] != 0 || processed[2] != 0 {
		t.Errorf("substituted frames after capture errors must not be processed: %v", processed)
	}
	if rig.stability.ConsecutiveErrors() != 2 {
		t.Errorf("expected error streak 2, got %d", rig.stability.ConsecutiveErrors())
	}
}

func TestSession_ResetsDeviceAfterRepeatedFailures(t *testing.T) {
	rig := newRig(t, testConfig())
	frame := testFrame()
	src := &fakeSource{next: func(i int) (image.Image, error) {
		switch {
		case i == 0:
			return frame, nil
		case i <= 6:
			return nil, errCapture
		default:
			return nil, io.EOF
		}
	}}

	var unstable int
	sess := newTestSession(rig, src, mock.NewMockRepository(), func(ev FrameEvent) {
		if !ev.Stable {
			unstable++
		}
	})

	rec, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec.Status != database.SessionCompleted {
		t.Errorf("expected completed status, got %q", rec.Status)
	}

	opens, releases := src.counts()
	if opens != 3 {
		t.Errorf("expected two device resets after the 5th and 6th failure, got %d opens", opens)
	}
	if releases != opens {
		t.Errorf("every open needs a release, got %d opens and %d releases", opens, releases)
	}
	if unstable != 2 {
		t.Errorf("expected 2 unstable events, got %d", unstable)
	}
}

func TestSession_StatusAndLastFrame(t *testing.T) {
	rig := newRig(t, testConfig())
	src := &fakeSource{next: framesThenEOF(2)}
	sess := newTestSession(rig, src, mock.NewMockRepository())

	if sess.LastFrame() != nil {
		t.Error("expected no frame before the run")
	}
	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	st := sess.Status()
	if st.TotalFrames != 2 || st.Recognitions != 2 || st.Source != "fake" || st.SessionID != sess.ID {
		t.Errorf("unexpected status: %+v", st)
	}
	if sess.LastFrame() == nil {
		t.Error("expected the last frame to be kept")
	}
}
