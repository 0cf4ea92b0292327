package collector

import (
	"sync"
)

// Fault makes a collection path answer with a fixed status instead of processing the hit.
type Fault struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	DelayMS    int    `json:"delay_ms,omitempty"`
	// Count limits the fault to the next Count requests. Zero keeps it until removed.
	Count int `json:"count,omitempty"`
}

type faultRegistry struct {
	mu     sync.Mutex
	faults map[string]Fault
}

func newFaultRegistry() *faultRegistry {
	return &faultRegistry{faults: make(map[string]Fault)}
}

func (fr *faultRegistry) set(path string, f Fault) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults[path] = f
}

func (fr *faultRegistry) remove(path string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, ok := fr.faults[path]
	delete(fr.faults, path)
	return ok
}

// take returns the fault for path, consuming one use of a counted fault.
func (fr *faultRegistry) take(path string) (Fault, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	f, ok := fr.faults[path]
	if !ok {
		return Fault{}, false
	}
	if f.Count > 0 {
		f.Count--
		if f.Count == 0 {
			delete(fr.faults, path)
		} else {
			fr.faults[path] = f
		}
	}
	return f, true
}

func (fr *faultRegistry) all() map[string]Fault {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make(map[string]Fault, len(fr.faults))
	for k, v := range fr.faults {
		out[k] = v
	}
	return out
}

func (fr *faultRegistry) reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]Fault)
}
