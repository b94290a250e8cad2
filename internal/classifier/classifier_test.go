package classifier_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"reelforge/internal/classifier"
	"reelforge/internal/services"
	"reelforge/internal/stage"
)

func failure(kind services.Kind, attempt int) *services.Failure {
	return &services.Failure{Kind: kind, Stage: stage.Transcribing, Attempt: attempt, Message: "upstream 503"}
}

func TestNonRetryableKindsFailImmediately(t *testing.T) {
	for _, kind := range []services.Kind{services.KindValidation, services.KindProcessing, services.KindCancelled} {
		res := classifier.Classify(failure(kind, 0))
		if res.Action != classifier.ActionFail {
			t.Fatalf("%s: expected fail, got %s", kind, res.Action)
		}
		if res.Delay != 0 {
			t.Fatalf("%s: expected no delay, got %s", kind, res.Delay)
		}
	}
}

func TestValidationMessageEchoesDetail(t *testing.T) {
	res := classifier.Classify(&services.Failure{Kind: services.KindValidation, Stage: stage.Uploaded, Message: "checksum mismatch"})
	if !strings.Contains(res.UserMessage, "checksum mismatch") {
		t.Fatalf("expected detail in message, got %q", res.UserMessage)
	}
}

func TestRetryableKindsBackOffExponentially(t *testing.T) {
	for _, kind := range []services.Kind{services.KindExternalService, services.KindStorage} {
		wantDelays := []time.Duration{time.Second, 2 * time.Second}
		for attempt, want := range wantDelays {
			res := classifier.Classify(failure(kind, attempt))
			if res.Action != classifier.ActionRetry {
				t.Fatalf("%s attempt %d: expected retry, got %s", kind, attempt, res.Action)
			}
			if res.Delay != want {
				t.Fatalf("%s attempt %d: expected delay %s, got %s", kind, attempt, want, res.Delay)
			}
		}
		res := classifier.Classify(failure(kind, 2))
		if res.Action != classifier.ActionFail {
			t.Fatalf("%s third failure: expected fail, got %s", kind, res.Action)
		}
		if !strings.Contains(res.UserMessage, "3 attempts") {
			t.Fatalf("%s: unexpected message %q", kind, res.UserMessage)
		}
	}
}

func TestClassifyNeverSkips(t *testing.T) {
	for _, kind := range services.Kinds() {
		for attempt := 0; attempt < 5; attempt++ {
			if res := classifier.Classify(failure(kind, attempt)); res.Action == classifier.ActionSkip {
				t.Fatalf("%s attempt %d returned skip", kind, attempt)
			}
		}
	}
}

func TestCustomPolicy(t *testing.T) {
	policy := classifier.Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}
	res := policy.Classify(failure(services.KindStorage, 3))
	if res.Action != classifier.ActionRetry || res.Delay != 80*time.Millisecond {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if res := policy.Classify(failure(services.KindStorage, 4)); res.Action != classifier.ActionFail {
		t.Fatalf("expected fail on fifth attempt, got %s", res.Action)
	}
}

func TestNilAndUnknownKindsFail(t *testing.T) {
	if res := classifier.Classify(nil); res.Action != classifier.ActionFail {
		t.Fatalf("nil failure: expected fail, got %s", res.Action)
	}
	odd := services.AsFailure(errors.New("mystery"), services.Kind("weird"))
	if res := classifier.Classify(odd); res.Action != classifier.ActionFail {
		t.Fatalf("unknown kind: expected fail, got %s", res.Action)
	}
}
