package cache

import (
	"sync"
)

// defaultRecentlyBlockedSize is the number of URLs kept by the tracker.
const defaultRecentlyBlockedSize = 20

// RecentlyBlockedTracker tracks recently blocked request URLs
type RecentlyBlockedTracker interface {
	Add(url string)   // Add a URL to the list
	GetAll() []string // Get all URLs, oldest first
	Clear()           // Clear the list
	Len() int         // Get current count
}

// recentlyBlockedImpl is the thread-safe implementation of RecentlyBlockedTracker
type recentlyBlockedImpl struct {
	mu      sync.RWMutex
	urls    []string
	maxSize int
}

// NewRecentlyBlockedTracker creates a new recently blocked tracker with max 20 entries
func NewRecentlyBlockedTracker() RecentlyBlockedTracker {
	return &recentlyBlockedImpl{
		urls:    make([]string, 0, defaultRecentlyBlockedSize),
		maxSize: defaultRecentlyBlockedSize,
	}
}

// Add appends url to the list, dropping the oldest entry once the list is
// full.  Repeating the most recent URL is a no-op.
func (r *recentlyBlockedImpl) Add(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.urls); n > 0 && r.urls[n-1] == url {
		return
	}

	r.urls = append(r.urls, url)
	if len(r.urls) > r.maxSize {
		r.urls = r.urls[1:]
	}
}

// GetAll returns a copy of all URLs in the list
func (r *recentlyBlockedImpl) GetAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.urls))
	copy(result, r.urls)

	return result
}

// Clear clears all URLs from the list
func (r *recentlyBlockedImpl) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.urls = make([]string, 0, r.maxSize)
}

// Len returns the current number of URLs in the list
func (r *recentlyBlockedImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.urls)
}
