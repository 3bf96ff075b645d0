// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cache holds fixes that are waiting to be uploaded.
package cache

import (
	"time"

	"github.com/relabs-tech/locator/internal/location"
)

const (
	DefaultStaleness  = 60 * time.Second
	DefaultMaxEntries = 32
)

// Outcome describes what Offer did with a fix.
type Outcome int

const (
	Inserted Outcome = iota
	Appended
	Replaced
	Discarded
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Discarded:
		return "discarded"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Cache coalesces fixes: fixes taken within the staleness window of the most
// recent entry compete for its slot and only a strictly more accurate one
// replaces it. The last entry is always the one an ongoing acquisition may
// still improve.
//
// Cache is not safe for concurrent use; the orchestrator owns it.
type Cache struct {
	staleness  time.Duration
	maxEntries int
	entries    []location.Fix
	dropped    int
}

func New(staleness time.Duration, maxEntries int) *Cache {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{staleness: staleness, maxEntries: maxEntries}
}

// Offer adds a fix to the cache, or coalesces it with the most recent entry.
func (c *Cache) Offer(fix location.Fix) Outcome {
	// (0,0) is what an uninitialized receiver reports.
	if fix.Latitude == 0 || fix.Longitude == 0 {
		return Rejected
	}

	if len(c.entries) == 0 {
		c.entries = append(c.entries, fix)
		return Inserted
	}

	last := c.entries[len(c.entries)-1]
	switch {
	case fix.Time.Sub(last.Time) > c.staleness:
		c.entries = append(c.entries, fix)
		c.trim()
		return Appended
	case last.Accuracy > fix.Accuracy:
		c.entries[len(c.entries)-1] = fix
		return Replaced
	default:
		return Discarded
	}
}

// Drain removes and returns the cached fixes, oldest first. With keepLast the
// most recent entry stays behind. Drain returns nil if nothing qualifies.
func (c *Cache) Drain(keepLast bool) []location.Fix {
	n := len(c.entries)
	if keepLast {
		n--
	}
	if n <= 0 {
		return nil
	}

	out := make([]location.Fix, n)
	copy(out, c.entries[:n])
	c.entries = append(c.entries[:0], c.entries[n:]...)
	return out
}

// Requeue puts fixes that could not be uploaded back in front of the cache.
func (c *Cache) Requeue(fixes []location.Fix) {
	if len(fixes) == 0 {
		return
	}
	entries := make([]location.Fix, 0, len(fixes)+len(c.entries))
	entries = append(entries, fixes...)
	entries = append(entries, c.entries...)
	c.entries = entries
	c.trim()
}

// Len returns the number of cached fixes.
func (c *Cache) Len() int { return len(c.entries) }

// last returns the most recent entry.
func (c *Cache) last() (location.Fix, bool) {
	if len(c.entries) == 0 {
		return location.Fix{}, false
	}
	return c.entries[len(c.entries)-1], true
}

// Dropped returns how many entries were evicted because the cache was full.
func (c *Cache) Dropped() int { return c.dropped }

func (c *Cache) trim() {
	if over := len(c.entries) - c.maxEntries; over > 0 {
		c.entries = append(c.entries[:0], c.entries[over:]...)
		c.dropped += over
	}
}
