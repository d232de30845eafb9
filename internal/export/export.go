// Package export snapshots the bridge's state (mappings, routing rules and
// recent audit events) as JSONL and ships it to S3 or a git repository.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/MMOzz/OSTKanBridge/internal/store"
)

// DefaultEventLimit is the number of audit events exported when the caller
// passes a non-positive limit.
const DefaultEventLimit = 500

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	MappingCount int       `json:"mapping_count"`
	RuleCount    int       `json:"rule_count"`
	EventCount   int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the store's mappings, routing rules and the most recent
// eventLimit audit events as JSONL to w. Mappings are sorted by source id,
// events oldest first.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, eventLimit int) error {
	if eventLimit <= 0 {
		eventLimit = DefaultEventLimit
	}

	mappings, err := s.ListMappings(ctx)
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].SourceID < mappings[j].SourceID
	})

	rules, err := s.ListRoutingRules(ctx)
	if err != nil {
		return fmt.Errorf("list routing rules: %w", err)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CategoryID < rules[j].CategoryID
	})

	events, err := s.ListEvents(ctx, eventLimit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ID < events[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		MappingCount: len(mappings),
		RuleCount:    len(rules),
		EventCount:   len(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, m := range mappings {
		if err := enc.Encode(record{Type: "mapping", Data: m}); err != nil {
			return fmt.Errorf("encode mapping %d: %w", m.SourceID, err)
		}
	}
	for _, r := range rules {
		if err := enc.Encode(record{Type: "routing_rule", Data: r}); err != nil {
			return fmt.Errorf("encode routing rule %d: %w", r.CategoryID, err)
		}
	}
	for _, ev := range events {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return fmt.Errorf("encode event %d: %w", ev.ID, err)
		}
	}
	return nil
}

// Destination is the interface for an export target (S3, git, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// ToDestinations exports once and writes the payload to every destination.
// A failing destination does not stop the others; their errors are joined.
func ToDestinations(ctx context.Context, s store.Store, dests []Destination, eventLimit int) (int, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s, &buf, eventLimit); err != nil {
		return 0, err
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range dests {
		if err := dest.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	return len(data), errors.Join(errs...)
}
