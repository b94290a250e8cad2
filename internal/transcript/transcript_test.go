package transcript_test

import (
	"errors"
	"strings"
	"testing"

	"reelforge/internal/transcript"
)

const sample = `1
00:00:00,000 --> 00:00:02,500
Welcome back to the channel.

2
00:00:02,500 --> 00:00:06,120
Today we are building
a standing desk.

3
00:01:05,000 --> 00:01:07,250
Let's get started.
`

func TestParseSRT(t *testing.T) {
	segments, err := transcript.ParseSRT(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	second := segments[1]
	if second.Index != 2 || second.Start != 2.5 || second.End != 6.12 {
		t.Fatalf("unexpected second segment %+v", second)
	}
	if second.Text != "Today we are building\na standing desk." {
		t.Fatalf("unexpected text %q", second.Text)
	}
	if segments[2].Start != 65 {
		t.Fatalf("expected 65s start, got %v", segments[2].Start)
	}
}

func TestParseSRTSkipsBlocksWithoutTimecodes(t *testing.T) {
	input := "garbage\nmore garbage\n\n00:00:01.000 --> 00:00:02.000\nno index here\n"
	segments, err := transcript.ParseSRT(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(segments) != 1 || segments[0].Index != 1 || segments[0].Text != "no index here" {
		t.Fatalf("unexpected segments %+v", segments)
	}
}

func TestParseSRTStripsByteOrderMark(t *testing.T) {
	input := "\ufeff7\n00:00:01,000 --> 00:00:02,500\nHello there.\n"
	segments, err := transcript.ParseSRT(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(segments) != 1 || segments[0].Index != 7 || segments[0].Text != "Hello there." {
		t.Fatalf("unexpected segments %+v", segments)
	}

	text, err := transcript.SRTToText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("SRTToText: %v", err)
	}
	if text != "Hello there." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestSRTToText(t *testing.T) {
	text, err := transcript.SRTToText(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("SRTToText: %v", err)
	}
	want := "Welcome back to the channel.\nToday we are building\na standing desk.\nLet's get started."
	if text != want {
		t.Fatalf("unexpected text:\n%s", text)
	}
}

func TestSRTToTextRejectsEmpty(t *testing.T) {
	_, err := transcript.SRTToText(strings.NewReader("1\n00:00:00,000 --> 00:00:01,000\n\n"))
	if !errors.Is(err, transcript.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestFormatSRTRoundTrip(t *testing.T) {
	segments, err := transcript.ParseSRT(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	again, err := transcript.ParseSRT(strings.NewReader(transcript.FormatSRT(segments)))
	if err != nil {
		t.Fatalf("ParseSRT(FormatSRT): %v", err)
	}
	if len(again) != len(segments) {
		t.Fatalf("segment count changed: %d vs %d", len(again), len(segments))
	}
	for i := range segments {
		if again[i] != segments[i] {
			t.Fatalf("segment %d changed: %+v vs %+v", i, again[i], segments[i])
		}
	}
}

func TestTimecodes(t *testing.T) {
	secs, err := transcript.ParseTimecode("01:02:03,045")
	if err != nil || secs != 3723.045 {
		t.Fatalf("ParseTimecode = %v, %v", secs, err)
	}
	if got := transcript.FormatTimecode(3723.045); got != "01:02:03,045" {
		t.Fatalf("FormatTimecode = %q", got)
	}
	if _, err := transcript.ParseTimecode("12:99:00,000"); err == nil {
		t.Fatal("expected error for invalid minutes")
	}
}

func TestTranscriptValidate(t *testing.T) {
	empty := transcript.Transcript{Segments: []transcript.Segment{{Start: 0, End: 1, Text: "  "}}}
	if !errors.Is(empty.Validate(), transcript.ErrEmpty) {
		t.Fatal("expected ErrEmpty for blank transcript")
	}
	backwards := transcript.Transcript{Segments: []transcript.Segment{{Start: 3, End: 1, Text: "hi"}}}
	if backwards.Validate() == nil {
		t.Fatal("expected error for reversed span")
	}
}
