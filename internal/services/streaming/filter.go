package streamingsvc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/pkg/log"
)

// filterVerdict classifies the outcome of an eligibility check.
type filterVerdict int

const (
	verdictDeliver filterVerdict = iota
	verdictChannel
	verdictPriority
	verdictRateLimited
	verdictCustom
)

// compiledFilters is the per-client custom filter set, parsed and compiled
// once when preferences are set so the delivery loop never re-parses
// parameter maps or CEL sources.
type compiledFilters struct {
	excludePatterns []string
	minConfidence   float64
	hasConfidence   bool
	expr            *celFilter
}

// compileFilters parses a CustomFilters map. Unknown filter names are
// ignored; malformed parameters and CEL compile errors reject the whole
// preference set.
func compileFilters(custom map[string]any) (compiledFilters, error) {
	var cf compiledFilters
	if len(custom) == 0 {
		return cf, nil
	}
	if raw, ok := custom["exclude_file_patterns"]; ok {
		pats, err := stringSlice(raw)
		if err != nil {
			return compiledFilters{}, fmt.Errorf("exclude_file_patterns: %w", err)
		}
		cf.excludePatterns = pats
	}
	if raw, ok := custom["min_confidence"]; ok {
		f, err := floatValue(raw)
		if err != nil {
			return compiledFilters{}, fmt.Errorf("min_confidence: %w", err)
		}
		cf.minConfidence = f
		cf.hasConfidence = true
	}
	if raw, ok := custom["expression"]; ok {
		src, isStr := raw.(string)
		if !isStr {
			return compiledFilters{}, fmt.Errorf("expression: want string, got %T", raw)
		}
		prog, err := newCELFilter(src)
		if err != nil {
			return compiledFilters{}, fmt.Errorf("expression: %w", err)
		}
		if prog.enabled {
			cf.expr = &prog
		}
	}
	return cf, nil
}

// stringSlice accepts []string directly and []any of strings from decoded
// JSON.
func stringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("want string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want string list, got %T", raw)
	}
}

func floatValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("want number, got %T", raw)
	}
}

// rateWindow is a fixed one-second admission window. The count resets when
// a check lands outside the window that opened it.
type rateWindow struct {
	windowStart time.Time
	count       int
}

// eventFilter decides per (event, preferences) eligibility. It is
// stateless apart from the per-client rate windows it owns.
type eventFilter struct {
	logger log.Logger

	mu    sync.Mutex
	rates map[string]*rateWindow
}

func newEventFilter(logger log.Logger) *eventFilter {
	return &eventFilter{logger: logger, rates: map[string]*rateWindow{}}
}

// ShouldDeliver reports whether ev is eligible for a client with prefs.
// The only side effect is the rate counter consumed on admission.
func (f *eventFilter) ShouldDeliver(now time.Time, ev event.Event, prefs ClientPreferences, cf compiledFilters) bool {
	return f.verdict(now, ev, prefs, cf) == verdictDeliver
}

// verdict runs the checks in order: channel, priority, rate, custom. Any
// failing check short-circuits.
func (f *eventFilter) verdict(now time.Time, ev event.Event, prefs ClientPreferences, cf compiledFilters) filterVerdict {
	if !channelEnabled(prefs.EnabledChannels, ev.Channel) {
		return verdictChannel
	}
	if ev.Priority < prefs.MinPriority {
		return verdictPriority
	}
	if !f.allowRate(now, prefs.ClientID, prefs.MaxEventsPerSecond) {
		return verdictRateLimited
	}
	if !f.matchCustom(ev, prefs.ClientID, cf) {
		return verdictCustom
	}
	return verdictDeliver
}

func channelEnabled(enabled []event.Channel, ch event.Channel) bool {
	for _, c := range enabled {
		if c == event.ChannelAll || c == ch {
			return true
		}
	}
	return false
}

// allowRate admits up to limit events per fixed one-second window. A
// non-positive limit means unlimited.
func (f *eventFilter) allowRate(now time.Time, clientID string, limit int) bool {
	if limit <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.rates[clientID]
	if w == nil {
		w = &rateWindow{windowStart: now}
		f.rates[clientID] = w
	}
	if now.Sub(w.windowStart) >= time.Second {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

func (f *eventFilter) matchCustom(ev event.Event, clientID string, cf compiledFilters) bool {
	if len(cf.excludePatterns) > 0 {
		if path, ok := ev.FilePath(); ok {
			for _, pat := range cf.excludePatterns {
				if pat != "" && strings.Contains(path, pat) {
					return false
				}
			}
		}
	}
	if cf.hasConfidence {
		if conf, ok := ev.Confidence(); ok && conf < cf.minConfidence {
			return false
		}
	}
	if cf.expr != nil {
		pass, err := cf.expr.Eval(ev)
		if err != nil {
			f.logger.With(
				log.Str("client_id", clientID),
				log.Str("event_id", ev.ID),
				log.Err(err),
			).Debug("streaming.filter_eval_failed")
			return false
		}
		if !pass {
			return false
		}
	}
	return true
}

// Forget drops the rate window for a removed client.
func (f *eventFilter) Forget(clientID string) {
	f.mu.Lock()
	delete(f.rates, clientID)
	f.mu.Unlock()
}
