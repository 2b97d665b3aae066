// Package ratelimit enforces per-client request limits written in the
// "N per period" notation (e.g. "5 per minute", "200/day").
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidLimit is returned by ParseLimit for malformed notation.
var ErrInvalidLimit = errors.New("invalid rate limit")

// Limit allows Count requests per Period.
type Limit struct {
	Count  int
	Period time.Duration
}

// String renders the limit in the notation ParseLimit accepts.
func (l Limit) String() string {
	for _, u := range units {
		if l.Period == u.d {
			return fmt.Sprintf("%d per %s", l.Count, u.name)
		}
	}
	for _, u := range units {
		if l.Period%u.d == 0 {
			return fmt.Sprintf("%d per %d %ss", l.Count, l.Period/u.d, u.name)
		}
	}
	return fmt.Sprintf("%d per %s", l.Count, l.Period)
}

// units is ordered largest first so String picks the coarsest exact unit.
var units = []struct {
	name string
	d    time.Duration
}{
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// ParseLimit parses "5 per minute", "5/minute", "10 per 30 seconds" or "1 per 2 hours".
func ParseLimit(s string) (Limit, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	var countPart, periodPart string
	if c, p, ok := strings.Cut(text, " per "); ok {
		countPart, periodPart = c, p
	} else if c, p, ok := strings.Cut(text, "/"); ok {
		countPart, periodPart = c, p
	} else {
		return Limit{}, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || count <= 0 {
		return Limit{}, fmt.Errorf("%w: count in %q", ErrInvalidLimit, s)
	}

	fields := strings.Fields(periodPart)
	multiplier := 1
	switch len(fields) {
	case 1:
	case 2:
		multiplier, err = strconv.Atoi(fields[0])
		if err != nil || multiplier <= 0 {
			return Limit{}, fmt.Errorf("%w: period in %q", ErrInvalidLimit, s)
		}
		fields = fields[1:]
	default:
		return Limit{}, fmt.Errorf("%w: period in %q", ErrInvalidLimit, s)
	}

	unit := strings.TrimSuffix(fields[0], "s")
	for _, u := range units {
		if u.name == unit {
			return Limit{Count: count, Period: time.Duration(multiplier) * u.d}, nil
		}
	}
	return Limit{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidLimit, fields[0])
}

// ParseLimits parses a list of limits separated by ";" or ",".
func ParseLimits(s string) ([]Limit, error) {
	var out []Limit
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := ParseLimit(part)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      Limit
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts a hit for key against limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Result, error)
}

// window returns the fixed window containing now and the storage key for it.
func window(prefix, key string, limit Limit, now time.Time) (string, time.Time) {
	periodSec := int64(limit.Period / time.Second)
	if periodSec <= 0 {
		periodSec = 1
	}
	idx := now.Unix() / periodSec
	resetAt := time.Unix((idx+1)*periodSec, 0)
	return fmt.Sprintf("%s:%s:%d/%d:%d", prefix, key, limit.Count, periodSec, idx), resetAt
}

// fixedWindowResult builds a Result from a post-increment counter value.
func fixedWindowResult(count int64, limit Limit, now, resetAt time.Time) Result {
	res := Result{
		Allowed:   count <= int64(limit.Count),
		Limit:     limit,
		Remaining: limit.Count - int(count),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res
}
