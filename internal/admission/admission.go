// Package admission enforces per-caller hourly quotas with sliding window
// rate limiting.
package admission

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"tunebridge/internal/core"
)

const (
	// windowDuration is the fixed quota window (always 1 hour)
	windowDuration = time.Hour
	// cleanupInterval is how often we clean up expired entries
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before we remove idle caller entries
	idleTimeout = 2 * windowDuration
)

// Caller classes, ordered by credential strength. Classification stops at the
// first credential present on the request.
const (
	ClassBot       = "bot"
	ClassAPIKey    = "apikey"
	ClassUser      = "user"
	ClassAnonymous = "anonymous"
)

// Request headers carrying caller credentials.
const (
	headerBotSecret = "X-Bot-Secret"
	headerAPIKey    = "X-Api-Key"
	headerUser      = "X-User-Id"
)

// Decision is the outcome of one admission check, shaped to map directly onto
// rate limit response headers and the 429 payload.
type Decision struct {
	Allowed   bool
	Class     string
	Limit     int
	Remaining int
	// Reset is when the oldest request in the window falls out, i.e. the
	// earliest moment a blocked caller regains budget.
	Reset time.Time
}

// Gate provides per-caller admission control with sliding window rate
// limiting over an hourly window.
type Gate struct {
	cfg         core.AdmissionConfig
	entries     map[string]*callerEntry // Key: "class:identifier"
	mutex       sync.RWMutex
	stopCleanup chan struct{}
}

// callerEntry tracks request timestamps for a single caller identity
type callerEntry struct {
	timestamps []time.Time // Sliding window of request timestamps
	lastSeen   time.Time   // When this caller was last seen (for cleanup)
}

// New creates a gate with the specified quota configuration and starts its
// background cleanup.
func New(cfg core.AdmissionConfig) *Gate {
	g := &Gate{
		cfg:         cfg,
		entries:     make(map[string]*callerEntry),
		stopCleanup: make(chan struct{}),
	}

	go g.cleanup()

	return g
}

// Stop stops the background cleanup goroutine
func (g *Gate) Stop() {
	close(g.stopCleanup)
}

// Admit classifies the request, charges one unit against the caller's hourly
// quota and returns the decision. A blocked request is not charged.
func (g *Gate) Admit(r *http.Request) Decision {
	class, identifier, limit := g.classify(r)
	return g.check(class, identifier, limit)
}

// classify resolves the caller identity from the strongest credential on the
// request. Anonymous callers are keyed by client IP.
func (g *Gate) classify(r *http.Request) (class, identifier string, limit int) {
	if secret := r.Header.Get(headerBotSecret); secret != "" && g.cfg.BotSecret != "" && secret == g.cfg.BotSecret {
		return ClassBot, "bot", g.cfg.BotLimit
	}
	if key := r.Header.Get(headerAPIKey); key != "" {
		limit := g.cfg.APIKeyLimit
		if override, ok := g.cfg.KeyLimits[key]; ok {
			limit = override
		}
		return ClassAPIKey, key, limit
	}
	if user := r.Header.Get(headerUser); user != "" {
		return ClassUser, user, g.cfg.UserLimit
	}
	return ClassAnonymous, clientIP(r), g.cfg.AnonymousLimit
}

func (g *Gate) check(class, identifier string, limit int) Decision {
	key := class + ":" + identifier
	now := time.Now()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	entry, exists := g.entries[key]
	if !exists {
		entry = &callerEntry{
			timestamps: make([]time.Time, 0, 16),
		}
		g.entries[key] = entry
	}

	entry.lastSeen = now

	// Remove timestamps outside the window
	windowStart := now.Add(-windowDuration)
	validTimestamps := entry.timestamps[:0] // Reuse slice capacity
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			validTimestamps = append(validTimestamps, ts)
		}
	}
	entry.timestamps = validTimestamps

	if len(entry.timestamps) >= limit {
		return Decision{
			Allowed:   false,
			Class:     class,
			Limit:     limit,
			Remaining: 0,
			Reset:     entry.timestamps[0].Add(windowDuration),
		}
	}

	entry.timestamps = append(entry.timestamps, now)
	reset := entry.timestamps[0].Add(windowDuration)
	return Decision{
		Allowed:   true,
		Class:     class,
		Limit:     limit,
		Remaining: limit - len(entry.timestamps),
		Reset:     reset,
	}
}

// clientIP strips the port from RemoteAddr. Proxy headers are deliberately
// ignored; they are trivially spoofable without a trusted proxy list.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// cleanup removes idle caller entries to prevent memory leaks
func (g *Gate) cleanup() {
	// Run immediately on startup
	g.performCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.performCleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

// performCleanup removes entries that have been idle for too long
func (g *Gate) performCleanup() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range g.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(g.entries, key)
		}
	}
}

// GetStats returns statistics about the gate for monitoring/debugging
func (g *Gate) GetStats() Stats {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return Stats{
		ActiveCallers: len(g.entries),
		WindowSeconds: int(windowDuration.Seconds()),
	}
}

// Stats contains gate statistics
type Stats struct {
	ActiveCallers int `json:"active_callers"`
	WindowSeconds int `json:"window_seconds"`
}
