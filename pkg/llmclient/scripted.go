package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ScriptEntry is one scripted StructuredLLM response, grounded on the
// teacher's test/e2e ScriptedLLMClient dual-dispatch mock.
type ScriptEntry struct {
	Response any   // marshaled into the caller's `into` via JSON round-trip
	Err      error // returned verbatim if set
}

// Scripted implements StructuredLLM with a deterministic, pre-programmed
// sequence of responses — sequential fallback plus per-schema routing,
// the same dual-dispatch shape the teacher's mock LLM client uses for
// agent-aware routing in parallel stages.
type Scripted struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	bySchema   map[string][]ScriptEntry
	schemaIdx  map[string]int
	calls      []Request
}

// NewScripted constructs an empty Scripted client.
func NewScripted() *Scripted {
	return &Scripted{
		bySchema:  make(map[string][]ScriptEntry),
		schemaIdx: make(map[string]int),
	}
}

// AddSequential appends an entry consumed in call order for requests
// whose SchemaName has no dedicated route.
func (s *Scripted) AddSequential(entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequential = append(s.sequential, entry)
}

// AddRouted appends an entry for a specific SchemaName, consumed in call
// order among same-schema requests ahead of sequential fallback.
func (s *Scripted) AddRouted(schemaName string, entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySchema[schemaName] = append(s.bySchema[schemaName], entry)
}

// Invoke implements StructuredLLM.
func (s *Scripted) Invoke(_ context.Context, req Request, into any) error {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	entry, err := s.nextLocked(req)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if entry.Err != nil {
		return entry.Err
	}
	raw, err := json.Marshal(entry.Response)
	if err != nil {
		return &ErrInvalidResponse{Transport: "scripted", Cause: err}
	}
	return DecodeStrict(raw, into)
}

func (s *Scripted) nextLocked(req Request) (ScriptEntry, error) {
	if req.SchemaName != "" {
		if entries, ok := s.bySchema[req.SchemaName]; ok {
			idx := s.schemaIdx[req.SchemaName]
			if idx < len(entries) {
				s.schemaIdx[req.SchemaName] = idx + 1
				return entries[idx], nil
			}
		}
	}
	if s.seqIndex < len(s.sequential) {
		entry := s.sequential[s.seqIndex]
		s.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("llmclient: scripted client exhausted (schema=%q)", req.SchemaName)
}

// CallCount returns the number of Invoke calls observed so far.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Calls returns a copy of every request observed so far, for assertions
// on prompt content.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}
