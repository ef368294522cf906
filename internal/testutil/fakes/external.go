package fakes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// EvidenceStore keeps uploaded proof files in memory.
type EvidenceStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
	// deleteFailures makes the first N Delete calls fail with deleteErr
	deleteFailures int
	Deletes        int
}

// NewEvidenceStore returns an empty store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{objects: map[string][]byte{}}
}

// FailPut makes every Put return err.
func (e *EvidenceStore) FailPut(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.putErr = err
}

// FailDelete makes the next n Delete calls return err.
func (e *EvidenceStore) FailDelete(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleteFailures = n
	e.deleteErr = err
}

func (e *EvidenceStore) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.putErr != nil {
		return "", e.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	e.objects[path] = buf.Bytes()
	return "mem://evidence/" + path, nil
}

func (e *EvidenceStore) Delete(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Deletes++
	if e.deleteFailures > 0 {
		e.deleteFailures--
		return e.deleteErr
	}
	delete(e.objects, path)
	return nil
}

// Paths lists stored object paths.
func (e *EvidenceStore) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.objects))
	for p := range e.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Source is a scripted ingestion source.
type Source struct {
	name string

	mu      sync.Mutex
	entries []models.IngestionEntry
	err     error
	delay   time.Duration
	Calls   int
}

// NewSource returns a source serving entries.
func NewSource(name string, entries ...models.IngestionEntry) *Source {
	return &Source{name: name, entries: entries}
}

// SetEntries replaces the rows the source serves.
func (s *Source) SetEntries(entries ...models.IngestionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// Fail makes Fetch return err.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Slow delays every Fetch by d, honouring context cancellation.
func (s *Source) Slow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context, driverID, weekID string) ([]models.IngestionEntry, error) {
	s.mu.Lock()
	s.Calls++
	delay, err := s.delay, s.err
	all := append([]models.IngestionEntry(nil), s.entries...)
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", s.name, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	var out []models.IngestionEntry
	for _, e := range all {
		if e.DriverID == driverID && e.WeekID == weekID {
			out = append(out, e)
		}
	}
	return out, nil
}

// PolicyProvider serves a fixed snapshot.
type PolicyProvider struct {
	mu   sync.Mutex
	snap models.PolicySnapshot
	err  error
}

// NewPolicyProvider returns a provider serving snap.
func NewPolicyProvider(snap models.PolicySnapshot) *PolicyProvider {
	return &PolicyProvider{snap: snap}
}

// Set replaces the served snapshot.
func (p *PolicyProvider) Set(snap models.PolicySnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
}

// Fail makes Snapshot return err.
func (p *PolicyProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *PolicyProvider) Snapshot(ctx context.Context) (models.PolicySnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.err
}
