package forum

import (
	"context"
	"fmt"
)

// Record is a row of an entity keyed by column name.
type Record map[string]any

// ID returns the record's primary key, or 0 if it has none.
func (r Record) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Result is returned by Mutator.InsertOne. Data holds the stored record
// including its generated id.
type Result struct {
	Data Record
}

// ManyResult is returned by Mutator.InsertMany, in input order.
type ManyResult struct {
	Data []Record
}

// Mutator writes records of a single entity.
type Mutator interface {
	InsertOne(ctx context.Context, rec Record) (*Result, error)
	InsertMany(ctx context.Context, recs []Record) (*ManyResult, error)
}

// DataContext hands out per-entity mutators.
type DataContext interface {
	Mutator(entity string) (Mutator, error)
}

// insertedID extracts the generated id from an insert result.
func insertedID(res *Result) (int64, error) {
	if res == nil || res.Data == nil {
		return 0, fmt.Errorf("insert returned no data")
	}
	id := res.Data.ID()
	if id == 0 {
		return 0, fmt.Errorf("insert returned no id")
	}
	return id, nil
}
