package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

const messagePrefixLen = 50

// ErrorRecord is one classified failure with the call it came from.
type ErrorRecord struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Message     string             `json:"message"`
	Kind        apperrors.Kind     `json:"kind"`
	Severity    telemetry.Severity `json:"severity"`
	Category    string             `json:"category"`
	Fingerprint string             `json:"fingerprint"`
	Context     CallContext        `json:"context"`
}

// ErrorPattern groups records sharing a fingerprint.
type ErrorPattern struct {
	Fingerprint string         `json:"fingerprint"`
	Kind        apperrors.Kind `json:"kind"`
	Sample      string         `json:"sample"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastSeen    time.Time      `json:"last_seen"`
	Count       int            `json:"count"`
	Services    []string       `json:"services"`

	services    map[string]struct{}
	recent      []time.Time
	lastSpikeAt time.Time
}

// TrackerOptions configures an ErrorTracker. A spike is more than
// SpikeThreshold occurrences of one pattern within SpikeWindow. Failures of a
// critical service escalate to critical severity once their pattern has been
// seen EscalateAfter times.
type TrackerOptions struct {
	Alerts           *telemetry.Aggregator
	CriticalServices []string
	SpikeThreshold   int
	SpikeWindow      time.Duration
	EscalateAfter    int
	HistorySize      int
	Clock            func() time.Time
	Logger           zerolog.Logger
}

// ErrorTracker classifies, logs and aggregates failures, and surfaces spikes as
// telemetry alerts.
type ErrorTracker struct {
	alerts         *telemetry.Aggregator
	critical       map[string]struct{}
	spikeThreshold int
	spikeWindow    time.Duration
	escalateAfter  int
	historySize    int
	now            func() time.Time
	logger         zerolog.Logger

	mu       sync.Mutex
	patterns map[string]*ErrorPattern
	history  []ErrorRecord
}

// NewErrorTracker creates a tracker with defaults applied for zero options.
func NewErrorTracker(opts TrackerOptions) *ErrorTracker {
	if opts.SpikeThreshold <= 0 {
		opts.SpikeThreshold = 5
	}
	if opts.SpikeWindow <= 0 {
		opts.SpikeWindow = 5 * time.Minute
	}
	if opts.EscalateAfter <= 0 {
		opts.EscalateAfter = 3
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	critical := make(map[string]struct{}, len(opts.CriticalServices))
	for _, s := range opts.CriticalServices {
		critical[s] = struct{}{}
	}

	return &ErrorTracker{
		alerts:         opts.Alerts,
		critical:       critical,
		spikeThreshold: opts.SpikeThreshold,
		spikeWindow:    opts.SpikeWindow,
		escalateAfter:  opts.EscalateAfter,
		historySize:    opts.HistorySize,
		now:            opts.Clock,
		logger:         opts.Logger.With().Str("component", "error_tracker").Logger(),
		patterns:       make(map[string]*ErrorPattern),
	}
}

// Fingerprint groups errors by kind and the leading part of their message.
func Fingerprint(kind apperrors.Kind, message string) string {
	if len(message) > messagePrefixLen {
		message = message[:messagePrefixLen]
	}
	sum := sha256.Sum256([]byte(string(kind) + "|" + message))
	return hex.EncodeToString(sum[:])[:12]
}

// Track records err against call and returns the resulting record.
func (t *ErrorTracker) Track(ctx context.Context, err error, call CallContext) ErrorRecord {
	now := t.now()
	kind := apperrors.Classify(err)
	message := err.Error()

	rec := ErrorRecord{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Message:     message,
		Kind:        kind,
		Category:    category(kind),
		Fingerprint: Fingerprint(kind, message),
		Context:     call,
	}

	t.mu.Lock()
	p, ok := t.patterns[rec.Fingerprint]
	if !ok {
		p = &ErrorPattern{
			Fingerprint: rec.Fingerprint,
			Kind:        kind,
			Sample:      message,
			FirstSeen:   now,
			services:    make(map[string]struct{}),
		}
		t.patterns[rec.Fingerprint] = p
	}
	p.Count++
	p.LastSeen = now
	p.services[call.Service] = struct{}{}

	cutoff := now.Add(-t.spikeWindow)
	recent := p.recent[:0]
	for _, ts := range p.recent {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	p.recent = append(recent, now)
	inWindow := len(p.recent)

	spike := inWindow > t.spikeThreshold &&
		(p.lastSpikeAt.IsZero() || now.Sub(p.lastSpikeAt) >= t.spikeWindow)
	if spike {
		p.lastSpikeAt = now
	}

	rec.Severity = t.severity(kind, call.Service, p.Count)

	t.history = append(t.history, rec)
	if over := len(t.history) - t.historySize; over > 0 {
		t.history = append([]ErrorRecord(nil), t.history[over:]...)
	}
	t.mu.Unlock()

	t.log(ctx, rec)

	if spike && t.alerts != nil {
		t.alerts.Raise(telemetry.Alert{
			Type:      telemetry.AlertErrorSpike,
			Service:   call.Service,
			Key:       rec.Fingerprint,
			Severity:  telemetry.SeverityHigh,
			Value:     float64(inWindow),
			Threshold: float64(t.spikeThreshold),
		})
	}
	return rec
}

func (t *ErrorTracker) severity(kind apperrors.Kind, service string, occurrences int) telemetry.Severity {
	var sev telemetry.Severity
	switch kind {
	case apperrors.KindValidation, apperrors.KindNotFound:
		return telemetry.SeverityLow
	case apperrors.KindProgramming:
		return telemetry.SeverityCritical
	case apperrors.KindCircuitOpen:
		sev = telemetry.SeverityHigh
	default:
		sev = telemetry.SeverityMedium
	}
	if _, ok := t.critical[service]; ok && occurrences >= t.escalateAfter {
		return telemetry.SeverityCritical
	}
	return sev
}

func (t *ErrorTracker) log(ctx context.Context, rec ErrorRecord) {
	logger := observability.WithTrace(ctx, t.logger)

	var event *zerolog.Event
	switch rec.Severity {
	case telemetry.SeverityLow:
		event = logger.Debug()
	case telemetry.SeverityMedium:
		event = logger.Warn()
	case telemetry.SeverityCritical:
		event = logger.Error().Bool("critical", true)
	default:
		event = logger.Error()
	}

	event = event.
		Str("error_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("severity", string(rec.Severity)).
		Str("category", rec.Category).
		Str("fingerprint", rec.Fingerprint).
		Str("dependency", rec.Context.Service).
		Str("operation", rec.Context.Operation)
	if rec.Context.UserID != "" {
		event = event.Str("user_id", rec.Context.UserID)
	}
	event.Msg(rec.Message)
}

// Patterns returns every pattern ordered by count, most frequent first.
func (t *ErrorTracker) Patterns() []ErrorPattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorPattern, 0, len(t.patterns))
	for _, p := range t.patterns {
		cp := ErrorPattern{
			Fingerprint: p.Fingerprint,
			Kind:        p.Kind,
			Sample:      p.Sample,
			FirstSeen:   p.FirstSeen,
			LastSeen:    p.LastSeen,
			Count:       p.Count,
		}
		for s := range p.services {
			cp.Services = append(cp.Services, s)
		}
		sort.Strings(cp.Services)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// Recent returns the most recent error records, oldest first.
func (t *ErrorTracker) Recent() []ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ErrorRecord(nil), t.history...)
}

// Prune forgets patterns not seen within retention.
func (t *ErrorTracker) Prune(retention time.Duration) int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for fp, p := range t.patterns {
		if now.Sub(p.LastSeen) >= retention {
			delete(t.patterns, fp)
			removed++
		}
	}
	return removed
}

func category(kind apperrors.Kind) string {
	switch kind {
	case apperrors.KindValidation:
		return "input"
	case apperrors.KindAuth:
		return "security"
	case apperrors.KindNotFound:
		return "data"
	case apperrors.KindCircuitOpen:
		return "availability"
	case apperrors.KindProgramming:
		return "code"
	default:
		return "network"
	}
}
