// Package transcript models timed speech segments and converts SRT
// subtitles to and from them.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ErrEmpty reports a transcript with no spoken text.
var ErrEmpty = errors.New("transcript has no text")

// Segment is one timed span of speech. Times are seconds from the start of
// the video.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Transcript is the output of the transcription collaborator.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Text joins segment text into plain text, one line per subtitle line.
func (t Transcript) Text() string {
	lines := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		for _, line := range strings.Split(seg.Text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Validate checks ordering and that some text exists.
func (t Transcript) Validate() error {
	if strings.TrimSpace(t.Text()) == "" {
		return ErrEmpty
	}
	for i, seg := range t.Segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return fmt.Errorf("segment %d: invalid span %.3f-%.3f", i+1, seg.Start, seg.End)
		}
	}
	return nil
}

var timecodeLine = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})`)

// ParseSRT reads SRT subtitles. Blocks without a timecode line are ignored;
// a missing or malformed index is replaced by the block's position.
func ParseSRT(r io.Reader) ([]Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments []Segment
		block    []string
	)
	flush := func() error {
		defer func() { block = block[:0] }()
		if len(block) < 2 {
			return nil
		}
		lines := block
		index := len(segments) + 1
		if n, err := strconv.Atoi(strings.TrimPrefix(lines[0], "\ufeff")); err == nil {
			index = n
			lines = lines[1:]
		}
		match := timecodeLine.FindStringSubmatch(lines[0])
		if match == nil {
			return nil
		}
		start, err := ParseTimecode(match[1])
		if err != nil {
			return err
		}
		end, err := ParseTimecode(match[2])
		if err != nil {
			return err
		}
		segments = append(segments, Segment{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[1:], "\n"),
		})
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segments, nil
}

// SRTToText strips index and timecode lines from SRT content and returns
// the remaining text. It fails with ErrEmpty when nothing is left.
func SRTToText(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || isDigits(line) || strings.Contains(line, "-->") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read srt: %w", err)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// FormatSRT renders segments as SRT, renumbering from 1.
func FormatSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, FormatTimecode(seg.Start), FormatTimecode(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// ParseTimecode converts HH:MM:SS,mmm (or with a dot) to seconds.
func ParseTimecode(value string) (float64, error) {
	value = strings.Replace(strings.TrimSpace(value), ",", ".", 1)
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timecode %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid timecode %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("invalid timecode %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds >= 60 {
		return 0, fmt.Errorf("invalid timecode %q", value)
	}
	return float64(hours*3600+minutes*60) + seconds, nil
}

// FormatTimecode renders seconds as HH:MM:SS,mmm.
func FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3_600_000
	m := (millis / 60_000) % 60
	s := (millis / 1000) % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
