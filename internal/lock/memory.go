package lock

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/models"
)

// ErrBackendUnavailable marks failures of the lock backend itself, as opposed to
// contention or cancellation.
var ErrBackendUnavailable = errors.New("lock backend unavailable")

// EngineerDateKey identifies one engineer's schedule on one civil date.
func EngineerDateKey(engineerID int64, date string) string {
	return "engineer:" + itoa(engineerID) + ":" + date
}

func StudioDateKey(studioID int64, date string) string {
	return "studio:" + itoa(studioID) + ":" + date
}

// TemplateKey guards an engineer's weekly template.
func TemplateKey(engineerID int64) string {
	return "engineer:" + itoa(engineerID) + ":template"
}

// normalizeKeys sorts and deduplicates keys so every caller locks in the same order.
func normalizeKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker provides keyed exclusive sections within one process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	timeout time.Duration
}

func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	if timeout <= 0 {
		timeout = models.DefaultLockTimeout
	}
	return &MemoryLocker{entries: make(map[string]*memoryEntry), timeout: timeout}
}

// Acquire takes every key in sorted order. It fails with a Busy error when the keys are
// not all obtained within the locker timeout and with ctx.Err() when ctx ends first.
// Nothing stays held on failure.
func (l *MemoryLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range keys {
		entry := l.ref(key)
		select {
		case entry.sem <- struct{}{}:
			held = append(held, key)
		case <-waitCtx.Done():
			l.unref(key)
			release()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.KindBusy, waitCtx.Err(), "schedule is busy, retry later")
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *MemoryLocker) ref(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *MemoryLocker) unlock(key string) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-entry.sem
	l.unref(key)
}

// Held reports how many keys currently have holders or waiters.
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
