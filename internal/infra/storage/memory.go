package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryCollection is an in-memory Collection. It backs the -storage memory
// mode and serves as the document-store fake in tests, where LoadErr and
// SaveErr simulate backend failures.
type MemoryCollection struct {
	mu       sync.Mutex
	records  map[string]PlayerRecord
	baseRate float64

	LoadErr   error            // returned by Load when set
	SaveErr   error            // returned by every Document.Save when set
	FailSaves map[string]error // per-key Save failures
	LoadHook  func(key string) // invoked during Load, before the document is returned
	SaveHook  func(key string) // invoked at the start of every Document.Save
}

// NewMemoryCollection creates an empty in-memory collection.
func NewMemoryCollection(baseRate float64) *MemoryCollection {
	return &MemoryCollection{
		records:   make(map[string]PlayerRecord),
		baseRate:  baseRate,
		FailSaves: make(map[string]error),
	}
}

// Seed stores a record directly, bypassing the document lifecycle.
func (c *MemoryCollection) Seed(key string, rec PlayerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = rec
}

// Stored returns the last saved record for key.
func (c *MemoryCollection) Stored(key string) (PlayerRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	return rec, ok
}

func (c *MemoryCollection) Load(ctx context.Context, key string) (Document, error) {
	if c.LoadHook != nil {
		c.LoadHook(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LoadErr != nil {
		return nil, c.LoadErr
	}
	rec, ok := c.records[key]
	if !ok {
		rec = DefaultRecord(c.baseRate, time.Now())
	}
	return &memoryDocument{key: key, rec: rec, coll: c}, nil
}

type memoryDocument struct {
	mu   sync.Mutex
	key  string
	rec  PlayerRecord
	coll *MemoryCollection
}

func (d *memoryDocument) Read() PlayerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec
}

func (d *memoryDocument) Write(rec PlayerRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec = rec
}

func (d *memoryDocument) Save(ctx context.Context) error {
	if d.coll.SaveHook != nil {
		d.coll.SaveHook(d.key)
	}

	d.mu.Lock()
	rec := d.rec
	d.mu.Unlock()

	d.coll.mu.Lock()
	defer d.coll.mu.Unlock()
	if d.coll.SaveErr != nil {
		return d.coll.SaveErr
	}
	if err, ok := d.coll.FailSaves[d.key]; ok {
		return err
	}
	d.coll.records[d.key] = rec
	return nil
}

func (d *memoryDocument) Close() {}
