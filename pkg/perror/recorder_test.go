package perror

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/basinrelay/flowgate/pkg/metrics"
)

func counterValue(t *testing.T, stage Stage, typ Type) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.ComponentErrorsTotal.WithLabelValues(string(stage), string(typ)).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordAlwaysIncrementsCounter(t *testing.T) {
	r := NewRecorder(time.Hour)
	before := counterValue(t, StageSending, PermanentIO)

	r.Record(New(StageSending, PermanentIO, "httpsink-recordcounter", errors.New("403 forbidden")))
	r.Record(New(StageSending, PermanentIO, "httpsink-recordcounter", errors.New("403 forbidden")))
	r.Record(New(StageSending, PermanentIO, "httpsink-recordcounter", errors.New("403 forbidden")))

	if got := counterValue(t, StageSending, PermanentIO) - before; got != 3 {
		t.Fatalf("counter increased by %v, want 3", got)
	}
}

func TestRecordSuppressesRepeatedLogWithinWindow(t *testing.T) {
	r := NewRecorder(time.Hour)
	key := "receiving|transient_io|gen-suppress|receiving/transient_io in gen-suppress: boom"

	if !r.allow(key) {
		t.Fatal("first allow() call should succeed")
	}
	if r.allow(key) {
		t.Fatal("second allow() call within the window should be suppressed")
	}
}

func TestRecordAllowsAgainAfterWindowElapses(t *testing.T) {
	r := NewRecorder(20 * time.Millisecond)
	key := "processing|encoding_error|parser-window|boom"

	if !r.allow(key) {
		t.Fatal("first allow() call should succeed")
	}
	time.Sleep(40 * time.Millisecond)
	if !r.allow(key) {
		t.Fatal("allow() should succeed again once the window elapses")
	}
}

func TestDefaultWindowAppliedWhenNonPositive(t *testing.T) {
	r := NewRecorder(0)
	if r.window != DefaultWindow {
		t.Fatalf("window = %v, want %v", r.window, DefaultWindow)
	}
}

func TestErrorFatalAndRetryable(t *testing.T) {
	if e := New(StageSending, FatalRuntime, "disk", nil); !e.Fatal() {
		t.Fatal("FatalRuntime error should report Fatal() == true")
	}
	if e := New(StageSending, TransientIO, "httpsink", nil); !e.Retryable() {
		t.Fatal("TransientIO error should report Retryable() == true")
	}
	if e := New(StageSending, PermanentIO, "httpsink", nil); e.Retryable() {
		t.Fatal("PermanentIO error should not be Retryable()")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	e := New(StageProcessing, EncodingError, "parser", cause)
	if !errors.Is(e, cause) {
		t.Fatal("errors.Is should see through Unwrap to the cause")
	}
}
