// Package tracking issues deep links and keeps a first-touch event ledger
// against them: every link carries a unique active slug, every issued start
// URL is unique, and the first accepted event per (link, user) is flagged.
package tracking

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/domainerr"
	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/store"
)

const maxPayloadLen = 64

// Store is the subset of *store.Store this component depends on.
type Store interface {
	CreateTrackingLink(ctx context.Context, tag, slug string) (store.TrackingLink, error)
	SoftDeleteTrackingLink(ctx context.Context, linkID int64) (bool, error)
	ActiveSlugExists(ctx context.Context, slug string) (bool, error)
	GetActiveTrackingLink(ctx context.Context, linkID int64) (store.TrackingLink, bool, error)
	ListActiveTrackingLinks(ctx context.Context) ([]store.TrackingLink, error)
	EventExists(ctx context.Context, linkID, userID int64) (bool, error)
	AppendTrackingEvent(ctx context.Context, linkID, userID int64, kind string, firstStart bool) (store.TrackingEvent, error)
	AggregateTrackingEvents(ctx context.Context, linkID int64, since, until string) (store.TrackingAggregate, error)
	ListTrackingEvents(ctx context.Context, linkID int64, since, until string) ([]store.TrackingEvent, error)
}

// Tracker issues deep links and records first-touch events against them.
type Tracker struct {
	store        Store
	host         string
	botName      string
	randomSource func([]byte) (int, error)
	nowFunc      func() time.Time
}

// New constructs a Tracker. host/botName build the start URL
// https://<host>/<bot>?start=<payload>.
func New(st Store, host, botName string) *Tracker {
	return &Tracker{
		store:        st,
		host:         host,
		botName:      botName,
		randomSource: rand.Read,
		nowFunc:      time.Now,
	}
}

// Create issues a new tracking link for tag. If slug is empty, one is
// derived from tag; on collision with an existing active slug, -2, -3, …
// is appended until unique.
func (t *Tracker) Create(ctx context.Context, tag, slug string) (store.TrackingLink, string, error) {
	resolvedSlug, err := t.resolveSlug(ctx, tag, slug)
	if err != nil {
		return store.TrackingLink{}, "", err
	}
	link, err := t.store.CreateTrackingLink(ctx, tag, resolvedSlug)
	if err != nil {
		return store.TrackingLink{}, "", domainerr.New(domainerr.IO, "tracking.Create", err)
	}

	payload, err := t.encodePayload(link.LinkID)
	if err != nil {
		return store.TrackingLink{}, "", domainerr.New(domainerr.Fatal, "tracking.Create", err)
	}
	startURL := fmt.Sprintf("https://%s/%s?start=%s", t.host, t.botName, payload)
	return link, startURL, nil
}

func (t *Tracker) resolveSlug(ctx context.Context, tag, slug string) (string, error) {
	base := strings.TrimSpace(slug)
	if base == "" {
		base = slugify(tag)
	} else {
		base = slugify(base)
	}
	if base == "" {
		sum := md5.Sum([]byte(tag))
		base = "link-" + fmt.Sprintf("%x", sum)[:8]
	}

	candidate := base
	for attempt := 2; ; attempt++ {
		exists, err := t.store.ActiveSlugExists(ctx, candidate)
		if err != nil {
			return "", domainerr.New(domainerr.IO, "tracking.resolveSlug", err)
		}
		if !exists {
			return candidate, nil
		}
		suffix := fmt.Sprintf("-%d", attempt)
		trimmed := base
		if len(trimmed)+len(suffix) > 50 {
			trimmed = trimmed[:50-len(suffix)]
		}
		candidate = trimmed + suffix
	}
}

// slugify lowercases tag, folds common Latin diacritics to their plain
// ASCII letter, collapses every other non [a-z0-9] run to a single
// hyphen, trims leading/trailing hyphens, and truncates to 50 runes.
func slugify(tag string) string {
	folded := asciiFold(strings.ToLower(tag))
	var b strings.Builder
	lastHyphen := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 50 {
		out = strings.TrimRight(out[:50], "-")
	}
	return out
}

var asciiFoldTable = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e', 'ė': 'e', 'ę': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
	'ý': 'y', 'ÿ': 'y',
	'ñ': 'n', 'ç': 'c', 'ß': 's',
}

// asciiFold replaces common Latin-1/Latin-Extended diacritics with their
// plain ASCII letter. Anything outside the table passes through and is
// handled by slugify's non-[a-z0-9] collapse.
func asciiFold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := asciiFoldTable[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// encodePayload builds the base64url(4-byte salt || 4-byte wall-time ||
// 8-byte big-endian link_id) payload, stripped of padding by construction
// (RawURLEncoding never pads).
func (t *Tracker) encodePayload(linkID int64) (string, error) {
	var salt [4]byte
	if _, err := t.randomSource(salt[:]); err != nil {
		return "", fmt.Errorf("tracking: generate salt: %w", err)
	}

	buf := make([]byte, 16)
	copy(buf[0:4], salt[:])
	binary.BigEndian.PutUint32(buf[4:8], uint32(t.nowFunc().Unix()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(linkID))

	payload := base64.RawURLEncoding.EncodeToString(buf)
	if len(payload) > maxPayloadLen {
		return "", fmt.Errorf("tracking: payload exceeds %d chars", maxPayloadLen)
	}
	return payload, nil
}

// DecodePayload extracts the link_id encoded by encodePayload. It is
// exported so the "start" handler of an external transport can invoke it
// directly without going through HandleStart's store lookup.
func DecodePayload(payload string) (int64, error) {
	buf, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("tracking: decode payload: %w", err)
	}
	if len(buf) < 16 {
		return 0, fmt.Errorf("tracking: payload too short")
	}
	return int64(binary.BigEndian.Uint64(buf[8:16])), nil
}

// HandleStart decodes payload, looks up the active link it names, records
// a "start" event for userID, and reports whether this is the user's
// first-ever event for that link. A decode failure or reference to a
// deleted/missing link returns (TrackingLink{}, false, false, nil) — "no
// match" is not an error.
func (t *Tracker) HandleStart(ctx context.Context, payload string, userID int64) (store.TrackingLink, bool, bool, error) {
	linkID, err := DecodePayload(payload)
	if err != nil {
		return store.TrackingLink{}, false, false, nil
	}

	link, ok, err := t.store.GetActiveTrackingLink(ctx, linkID)
	if err != nil {
		return store.TrackingLink{}, false, false, domainerr.New(domainerr.IO, "tracking.HandleStart", err)
	}
	if !ok {
		return store.TrackingLink{}, false, false, nil
	}

	exists, err := t.store.EventExists(ctx, linkID, userID)
	if err != nil {
		return store.TrackingLink{}, false, false, domainerr.New(domainerr.IO, "tracking.HandleStart", err)
	}
	firstStart := !exists

	if _, err := t.store.AppendTrackingEvent(ctx, linkID, userID, "start", firstStart); err != nil {
		return store.TrackingLink{}, false, false, domainerr.New(domainerr.IO, "tracking.HandleStart", err)
	}
	return link, firstStart, true, nil
}

// RecordVisit appends a plain "visit" event (e.g. a web landing-page hit
// that is not a chat "start" command) against linkID for userID.
func (t *Tracker) RecordVisit(ctx context.Context, linkID, userID int64) error {
	link, ok, err := t.store.GetActiveTrackingLink(ctx, linkID)
	if err != nil {
		return domainerr.New(domainerr.IO, "tracking.RecordVisit", err)
	}
	if !ok {
		return domainerr.New(domainerr.InputInvalid, "tracking.RecordVisit", fmt.Errorf("link %d not active", linkID))
	}
	exists, err := t.store.EventExists(ctx, link.LinkID, userID)
	if err != nil {
		return domainerr.New(domainerr.IO, "tracking.RecordVisit", err)
	}
	if _, err := t.store.AppendTrackingEvent(ctx, link.LinkID, userID, "visit", !exists); err != nil {
		return domainerr.New(domainerr.IO, "tracking.RecordVisit", err)
	}
	return nil
}

// Delete soft-deletes linkID, freeing its slug for reuse by future links.
// Deleting an already-deleted or unknown link reports false without error.
func (t *Tracker) Delete(ctx context.Context, linkID int64) (bool, error) {
	deleted, err := t.store.SoftDeleteTrackingLink(ctx, linkID)
	if err != nil {
		return false, domainerr.New(domainerr.IO, "tracking.Delete", err)
	}
	return deleted, nil
}

// ListActiveLinks returns active links, newest first.
func (t *Tracker) ListActiveLinks(ctx context.Context) ([]store.TrackingLink, error) {
	links, err := t.store.ListActiveTrackingLinks(ctx)
	if err != nil {
		return nil, domainerr.New(domainerr.IO, "tracking.ListActiveLinks", err)
	}
	return links, nil
}

// DayBucket is one day's rollup within a Report.
type DayBucket struct {
	Day         string `json:"day"`
	TotalEvents int64  `json:"total_events"`
	UniqueUsers int64  `json:"unique_users"`
	FirstStarts int64  `json:"first_starts"`
}

// Report is the aggregate view of a link's events, optionally broken down
// by day.
type Report struct {
	LinkID      int64       `json:"link_id"`
	TotalEvents int64       `json:"total_events"`
	UniqueUsers int64       `json:"unique_users"`
	FirstStarts int64       `json:"first_starts"`
	ByDay       []DayBucket `json:"by_day,omitempty"`
}

// Report aggregates linkID's events within the optional [since, until)
// window (ISO-8601 strings; empty means unbounded), plus a per-day
// breakdown.
func (t *Tracker) Report(ctx context.Context, linkID int64, since, until string) (Report, error) {
	agg, err := t.store.AggregateTrackingEvents(ctx, linkID, since, until)
	if err != nil {
		return Report{}, domainerr.New(domainerr.IO, "tracking.Report", err)
	}
	events, err := t.store.ListTrackingEvents(ctx, linkID, since, until)
	if err != nil {
		return Report{}, domainerr.New(domainerr.IO, "tracking.Report", err)
	}

	byDay := make(map[string]*DayBucket)
	usersByDay := make(map[string]map[int64]bool)
	for _, e := range events {
		day := e.CreatedAt
		if idx := strings.IndexByte(day, 'T'); idx >= 0 {
			day = day[:idx]
		}
		bucket, ok := byDay[day]
		if !ok {
			bucket = &DayBucket{Day: day}
			byDay[day] = bucket
			usersByDay[day] = make(map[int64]bool)
		}
		bucket.TotalEvents++
		if e.FirstStart {
			bucket.FirstStarts++
		}
		if !usersByDay[day][e.UserID] {
			usersByDay[day][e.UserID] = true
			bucket.UniqueUsers++
		}
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	buckets := make([]DayBucket, 0, len(days))
	for _, d := range days {
		buckets = append(buckets, *byDay[d])
	}

	return Report{
		LinkID:      agg.LinkID,
		TotalEvents: agg.TotalEvents,
		UniqueUsers: agg.UniqueUsers,
		FirstStarts: agg.FirstStarts,
		ByDay:       buckets,
	}, nil
}
