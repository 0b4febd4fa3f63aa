package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Document is one player's loaded record. Read and Write operate on the
// in-memory copy only; Save pushes the copy to the backend; Close releases
// the handle. A Document is safe for concurrent use: the record store writes
// from the engine loop while saves run on their own goroutines.
type Document interface {
	Read() PlayerRecord
	Write(rec PlayerRecord)
	Save(ctx context.Context) error
	Close()
}

// Collection loads documents by key, creating the default record for keys
// that have never been saved.
type Collection interface {
	Load(ctx context.Context, key string) (Document, error)
}

// repoCollection adapts a PlayerRepository into the document model.
type repoCollection struct {
	repo     PlayerRepository
	baseRate float64
}

// NewCollection wraps a PlayerRepository in the document abstraction.
// baseRate seeds EnergyPerSecond on first access.
func NewCollection(repo PlayerRepository, baseRate float64) Collection {
	return &repoCollection{repo: repo, baseRate: baseRate}
}

func (c *repoCollection) Load(ctx context.Context, key string) (Document, error) {
	rec, found, err := c.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	if !found {
		rec = DefaultRecord(c.baseRate, time.Now())
	}
	return &repoDocument{key: key, rec: rec, repo: c.repo}, nil
}

type repoDocument struct {
	mu     sync.Mutex
	key    string
	rec    PlayerRecord
	repo   PlayerRepository
	closed bool
}

func (d *repoDocument) Read() PlayerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec
}

func (d *repoDocument) Write(rec PlayerRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec = rec
}

func (d *repoDocument) Save(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("document %s is closed", d.key)
	}
	rec := d.rec
	d.mu.Unlock()

	if err := d.repo.Upsert(ctx, d.key, rec); err != nil {
		return fmt.Errorf("failed to save document %s: %w", d.key, err)
	}
	return nil
}

func (d *repoDocument) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
