package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"magneto/internal/channels"
	"magneto/internal/recorder"
	logx "magneto/pkg/logx"
)

type webFixture struct {
	srv *Server
	rec *recorder.Service
}

func newWebFixture(t *testing.T, cfg Config) *webFixture {
	t.Helper()
	list, err := channels.New([]string{"TF1", "Arte"})
	if err != nil {
		t.Fatal(err)
	}
	rec := recorder.New(recorder.Config{
		Devices:     2,
		MaxDuration: 4 * time.Hour,
	}, recorder.Deps{
		Channels: list,
		Launcher: recorder.NewCaptureCommand("/bin/true", "/etc/channels.conf", logx.Nop()),
	})
	rec.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rec.Stop(ctx)
	})

	srv, err := NewServer(cfg, rec, list, 2, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &webFixture{srv: srv, rec: rec}
}

// formFor builds a valid scheduling form for a window far in the future.
func formFor(program string) url.Values {
	return url.Values{
		"channel":      {"0"},
		"device":       {"1"},
		"program_name": {program},
		"begin_date":   {"25-12-2030 20:00"},
		"end_date":     {"25-12-2030 21:00"},
	}
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func flashKind(t *testing.T, rr *httptest.ResponseRecorder) (kind, msg string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body: %s", rr.Code, rr.Body.String())
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	return loc.Query().Get("kind"), loc.Query().Get("msg")
}

func TestIndexRendersForm(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"TF1", "Arte", "program_name", "begin_date"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index missing %q", want)
		}
	}
}

func TestRecordAccepted(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	kind, msg := flashKind(t, postForm(t, f.srv.Handler(), "/record", formFor("Christmas special")))
	if kind != "info" {
		t.Fatalf("kind = %q, msg = %q", kind, msg)
	}
	if !strings.Contains(msg, "Christmas special") || !strings.Contains(msg, "60 minutes") {
		t.Fatalf("msg = %q", msg)
	}

	jobs := f.rec.Jobs()
	if len(jobs) != 1 || jobs[0].Request.Channel != "TF1" || jobs[0].Request.Device != 1 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestRecordRejections(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})

	tests := []struct {
		name   string
		mutate func(v url.Values)
	}{
		{name: "bad begin date", mutate: func(v url.Values) { v.Set("begin_date", "2030-12-25 20:00") }},
		{name: "bad end date", mutate: func(v url.Values) { v.Set("end_date", "whenever") }},
		{name: "bad channel index", mutate: func(v url.Values) { v.Set("channel", "99") }},
		{name: "non-numeric channel", mutate: func(v url.Values) { v.Set("channel", "TF1") }},
		{name: "short program", mutate: func(v url.Values) { v.Set("program_name", "hi") }},
		{name: "device out of range", mutate: func(v url.Values) { v.Set("device", "7") }},
		{name: "end before start", mutate: func(v url.Values) { v.Set("end_date", "25-12-2030 19:00") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := formFor("A perfectly fine program")
			tt.mutate(form)
			kind, msg := flashKind(t, postForm(t, f.srv.Handler(), "/record", form))
			if kind != "danger" {
				t.Fatalf("kind = %q, msg = %q", kind, msg)
			}
		})
	}
}

func TestRecordConflictMessage(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	h := f.srv.Handler()

	if kind, msg := flashKind(t, postForm(t, h, "/record", formFor("First booking here"))); kind != "info" {
		t.Fatalf("first post failed: %q", msg)
	}
	kind, msg := flashKind(t, postForm(t, h, "/record", formFor("Second booking here")))
	if kind != "danger" || !strings.Contains(msg, "booked") {
		t.Fatalf("kind = %q, msg = %q", kind, msg)
	}
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	h := f.srv.Handler()

	flashKind(t, postForm(t, h, "/record", formFor("Cancel me please")))
	jobs := f.rec.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %+v", jobs)
	}
	id := jobs[0].ID

	rr := postForm(t, h, "/jobs/"+id+"/cancel", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", rr.Code)
	}
	// Terminal now: a second cancel conflicts.
	if rr := postForm(t, h, "/jobs/"+id+"/cancel", nil); rr.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d", rr.Code)
	}
	if rr := postForm(t, h, "/jobs/no-such-job/cancel", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown cancel status = %d", rr.Code)
	}
}

func TestJobsJSON(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	h := f.srv.Handler()
	flashKind(t, postForm(t, h, "/record", formFor("A JSON visible job")))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["program"] != "A JSON visible job" || out[0]["state"] != "armed" {
		t.Fatalf("jobs json = %+v", out)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Fatalf("body = %q", got)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{})
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	t.Parallel()
	f := newWebFixture(t, Config{RequestsPerMinute: 1})
	h := f.srv.Handler()

	if kind, msg := flashKind(t, postForm(t, h, "/record", formFor("Within the limit"))); kind != "info" {
		t.Fatalf("first post rejected: %q", msg)
	}
	kind, msg := flashKind(t, postForm(t, h, "/record", formFor("Over the limit now")))
	if kind != "danger" || !strings.Contains(msg, "Too many") {
		t.Fatalf("kind = %q, msg = %q", kind, msg)
	}
}
