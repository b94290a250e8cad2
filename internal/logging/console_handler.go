package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders records for humans: a one-line header naming the
// job and stage, then the interesting attributes as an indented list.
// At info level, attributes that repeat their previous value for the same
// job are suppressed.
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	prefix    string
	seen      map[string]map[string]string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{
		mu:        &sync.Mutex{},
		writer:    w,
		level:     lvl,
		addSource: addSource,
		seen:      make(map[string]map[string]string),
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.prefix, attrs)...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

type kv struct {
	key   string
	value slog.Value
}

// consoleEntry is one record with the header fields pulled out.
type consoleEntry struct {
	time      time.Time
	level     slog.Level
	message   string
	component string
	jobID     string
	stage     string
	source    *slog.Source
	attrs     []kv
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	var attrs []kv
	flatten(&attrs, "", h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flatten(&attrs, h.prefix, []slog.Attr{attr})
		return true
	})

	entry := consoleEntry{
		time:    record.Time,
		level:   record.Level,
		message: strings.TrimSpace(record.Message),
		attrs:   lastWins(attrs),
	}
	if entry.time.IsZero() {
		entry.time = time.Now()
	}
	if entry.message == "" {
		entry.message = "(no message)"
	}
	if h.addSource {
		entry.source = record.Source()
	}
	for _, a := range entry.attrs {
		switch a.key {
		case FieldComponent:
			entry.component = attrString(a.value)
		case FieldJobID:
			entry.jobID = attrString(a.value)
		case FieldStage:
			entry.stage = attrString(a.value)
		}
	}

	var buf bytes.Buffer
	h.mu.Lock()
	defer h.mu.Unlock()
	entry.writeHeader(&buf)
	if entry.level < slog.LevelInfo {
		entry.writeDebug(&buf)
	} else {
		h.writeInfo(&buf, entry)
	}
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (e consoleEntry) writeHeader(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%s %s", formatTimestamp(e.time), levelLabel(e.level))
	if e.component != "" {
		fmt.Fprintf(buf, " [%s]", e.component)
	}
	if subject := subjectOf(e.jobID, e.stage); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" – " + e.message)
	if e.source != nil {
		fmt.Fprintf(buf, " [%s:%d]", filepath.Base(e.source.File), e.source.Line)
	}
	buf.WriteByte('\n')
}

// writeDebug lists every attribute verbatim.
func (e consoleEntry) writeDebug(buf *bytes.Buffer) {
	for _, a := range e.attrs {
		fmt.Fprintf(buf, "    %s: %s\n", a.key, formatValue(a.value))
	}
}

func (h *consoleHandler) writeInfo(buf *bytes.Buffer, e consoleEntry) {
	fields, hidden := selectInfoFields(e.attrs)
	fields = h.dropRepeated(infoSummaryKey(e.component, e.jobID), fields, e.level)

	for _, f := range fields {
		fmt.Fprintf(buf, "    - %s: %s\n", f.label, f.value)
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		fmt.Fprintf(buf, "    + %d more fields hidden\n", hidden)
	}
}

// dropRepeated removes fields whose value matches the last one shown under
// key. Warnings and errors always show everything but still update the
// cache.
func (h *consoleHandler) dropRepeated(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	last := h.seen[key]
	if last == nil {
		last = make(map[string]string)
		h.seen[key] = last
	}
	kept := fields[:0:0]
	for _, f := range fields {
		if prev, ok := last[f.label]; ok && prev == f.value && level <= slog.LevelInfo {
			continue
		}
		last[f.label] = f.value
		kept = append(kept, f)
	}
	return kept
}

func subjectOf(jobID, stage string) string {
	jobID, stage = strings.TrimSpace(jobID), strings.TrimSpace(stage)
	switch {
	case jobID != "" && stage != "":
		return "Job " + shortID(jobID) + " (" + stage + ")"
	case jobID != "":
		return "Job " + shortID(jobID)
	default:
		return stage
	}
}

// shortID trims UUIDs to their first block.
func shortID(id string) string {
	if len(id) == 36 && id[8] == '-' {
		return id[:8]
	}
	return id
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// flatten appends attrs to dst with group names folded into dotted keys.
func flatten(dst *[]kv, prefix string, attrs []slog.Attr) {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			flatten(dst, joinKey(prefix, attr.Key), value.Group())
			continue
		}
		if key := joinKey(prefix, attr.Key); key != "" {
			*dst = append(*dst, kv{key: key, value: value})
		}
	}
}

// qualify nests attrs under prefix so WithAttrs after WithGroup keeps the
// group.
func qualify(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	return []slog.Attr{{Key: prefix, Value: slog.GroupValue(attrs...)}}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// lastWins keeps the first position of each key with its latest value.
func lastWins(attrs []kv) []kv {
	index := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, a := range attrs {
		if i, ok := index[a.key]; ok {
			out[i].value = a.value
			continue
		}
		index[a.key] = len(out)
		out = append(out, a)
	}
	return out
}
