package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sageteck/tuneup-relay/internal/core"
)

// fakeConn records delivered frames; optionally fails every send.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// lastEvent decodes the most recent frame's envelope.
func (f *fakeConn) lastEvent(t *testing.T) (string, map[string]any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatal("no frames delivered")
	}
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &env); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	return env.Event, env.Data
}
