package chat

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup remembers recently delivered keys so that a redelivery from an
// at-least-once backbone is not fanned out twice. Memory is bounded by size.
type Dedup struct {
	seen *lru.Cache[string, struct{}]
}

// NewDedup creates a Dedup holding up to size keys.
func NewDedup(size int) (*Dedup, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Dedup{seen: cache}, nil
}

// FirstSight records key and reports whether it had not been seen before.
func (d *Dedup) FirstSight(key string) bool {
	contained, _ := d.seen.ContainsOrAdd(key, struct{}{})
	return !contained
}
