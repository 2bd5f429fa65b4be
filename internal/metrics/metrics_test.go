package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandler_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/letters/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequests.WithLabelValues("GET", "/api/letters/{id}", "418")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/letters/sad-day", nil))
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/letters/other", nil))

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("requests counted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Errorf("in-flight = %v after completion", got)
	}
}

func TestInstrumentHandler_KeepsFlusher(t *testing.T) {
	var flushable bool
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if !flushable {
		t.Fatal("wrapped writer lost http.Flusher")
	}
}

func TestRecorders(t *testing.T) {
	rej := rejections.WithLabelValues("letter-open", "429")
	before := testutil.ToFloat64(rej)
	RecordRejection("letter-open", http.StatusTooManyRequests)
	if got := testutil.ToFloat64(rej) - before; got != 1 {
		t.Errorf("rejections delta = %v", got)
	}

	none := rejections.WithLabelValues("none", "403")
	before = testutil.ToFloat64(none)
	RecordRejection("", http.StatusForbidden)
	if got := testutil.ToFloat64(none) - before; got != 1 {
		t.Errorf("unscoped rejection delta = %v", got)
	}

	em := emergencies.WithLabelValues("smtp", "false")
	before = testutil.ToFloat64(em)
	RecordEmergency("smtp", false)
	if got := testutil.ToFloat64(em) - before; got != 1 {
		t.Errorf("emergency delta = %v", got)
	}

	ev := letterEvents.WithLabelValues("opened")
	before = testutil.ToFloat64(ev)
	RecordLetterEvent("opened")
	if got := testutil.ToFloat64(ev) - before; got != 1 {
		t.Errorf("letter event delta = %v", got)
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordMaintenance("limiter-sweep", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `openme_maintenance_job_runs_total{job="limiter-sweep",success="true"}`) {
		t.Fatalf("metrics output missing maintenance counter:\n%s", rec.Body.String())
	}
}

func TestRegisterStreams(t *testing.T) {
	clients, dropped := 3, uint64(7)
	if err := RegisterStreams(func() int { return clients }, func() uint64 { return dropped }); err != nil {
		t.Fatalf("RegisterStreams: %v", err)
	}
	if err := RegisterStreams(func() int { return 0 }, func() uint64 { return 0 }); err == nil {
		t.Error("second registration should fail")
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"openme_events_subscribers 3", "openme_events_dropped_frames_total 7"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
