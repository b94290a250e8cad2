package logging

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys are listed first, in this order, on console info lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"job_status",
	FieldAttempt,
	"percent",
	"retry_delay",
	FieldErrorKind,
	"error_message",
	FieldErrorHint,
	"output",
	"published_url",
	"stage_duration",
	"job_duration",
	"owner_id",
	"worker",
	"command",
	"status_code",
}

// selectInfoFields picks the attributes shown on an info line: highlight
// keys first, then the rest in record order, at most infoAttrLimit of them.
// Debug-only keys and long values are counted as hidden instead.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	used := make([]bool, len(attrs))
	var result []infoField
	hidden := 0

	accept := func(idx int) {
		attr := attrs[idx]
		used[idx] = true
		if skipInfoKey(attr.key) {
			return
		}
		val := formatValueForKey(attr.key, attr.value)
		if isDebugOnlyKey(attr.key) || shouldHideInfoValue(attr.key, val) || len(result) >= infoAttrLimit {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: val})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				accept(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			accept(idx)
		}
	}
	return result, hidden
}

// formatValueForKey applies formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()

	if isByteSizeKey(key) && v.Kind() == slog.KindInt64 {
		return formatBytes(v.Int64())
	}
	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}
	if key == "percent" && v.Kind() == slog.KindInt64 {
		return fmt.Sprintf("%d%%", v.Int64())
	}
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value)
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") || key == "size"
}

func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_delay") ||
		strings.HasSuffix(key, "_timeout") ||
		key == "elapsed"
}

func formatBytes(value int64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}

func formatDurationHuman(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldJobID, FieldStage, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID, "lease_owner", "source_path", "argv":
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldJobID && key != "owner_id" {
		return true
	}
	return strings.Contains(key, "_path") || strings.Contains(key, "_dir")
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "command":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorKind:
		return "Failure"
	case "job_status":
		return "Status"
	case "retry_delay":
		return "Retry In"
	case "stage_duration":
		return "Duration"
	case "job_duration":
		return "Total"
	case "published_url":
		return "URL"
	case "owner_id":
		return "Owner"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

// infoSummaryKey scopes repeated-field suppression to one job or component.
func infoSummaryKey(component, jobID string) string {
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		return "job:" + jobID
	}
	return component
}
