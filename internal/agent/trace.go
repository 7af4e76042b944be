package agent

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Tracer appends one JSON object per pipeline step to a JSONL file. Trace
// writes are best-effort; a failing trace never fails the pipeline.
type Tracer struct {
	mu   sync.Mutex
	path string
}

// NewTracer creates a tracer writing to the given path.
func NewTracer(path string) *Tracer {
	return &Tracer{path: path}
}

// Step records a pipeline step with its fields.
func (t *Tracer) Step(step string, fields map[string]any) {
	if t == nil {
		return
	}
	entry := map[string]any{
		"step":      step,
		"timestamp": time.Now().UnixMilli(),
	}
	for k, v := range fields {
		entry[k] = v
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(entry)
}
