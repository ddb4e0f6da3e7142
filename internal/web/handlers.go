package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"magneto/internal/recorder"
	logx "magneto/pkg/logx"
)

// dateFormat matches the original form's day-first convention.
const dateFormat = "02-01-2006 15:04"

type indexData struct {
	Channels []string
	Devices  []int
	Message  string
	Kind     string // info | danger
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	devices := make([]int, s.devices)
	for i := range devices {
		devices[i] = i
	}
	data := indexData{
		Channels: s.channels.Names(),
		Devices:  devices,
		Message:  r.URL.Query().Get("msg"),
		Kind:     r.URL.Query().Get("kind"),
	}
	if data.Kind == "" {
		data.Kind = "info"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("template render failed", logx.Err(err))
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.flash(w, r, "danger", "Too many scheduling requests, slow down.")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.flash(w, r, "danger", "The form could not be read.")
		return
	}

	req, err := s.parseRequest(r.PostForm)
	if err != nil {
		s.flash(w, r, "danger", err.Error())
		return
	}

	receipt, err := s.rec.Schedule(req)
	if err != nil {
		s.flash(w, r, "danger", userMessage(err))
		return
	}

	s.log.Info("recording scheduled via web",
		logx.String("job", receipt.JobID),
		logx.String("program", receipt.Program))
	s.flash(w, r, "info", fmt.Sprintf(
		"Recording of %q is scheduled on %s at %s for %d minutes on %s (device %d).",
		receipt.Program,
		receipt.Start.Format("02/01/2006"),
		receipt.Start.Format("15:04"),
		int(receipt.Duration.Minutes()),
		receipt.Channel,
		receipt.Device,
	))
}

// parseRequest turns raw form values into a recorder.Request. The channel
// arrives as an index into the configured list, like the original select
// widget; device likewise.
func (s *Server) parseRequest(form url.Values) (recorder.Request, error) {
	chIdx, err := strconv.Atoi(form.Get("channel"))
	if err != nil {
		return recorder.Request{}, errors.New("invalid channel selection")
	}
	channel, ok := s.channels.At(chIdx)
	if !ok {
		return recorder.Request{}, errors.New("invalid channel selection")
	}

	device := 0
	if v := strings.TrimSpace(form.Get("device")); v != "" {
		device, err = strconv.Atoi(v)
		if err != nil {
			return recorder.Request{}, errors.New("invalid device selection")
		}
	}

	program := strings.TrimSpace(form.Get("program_name"))

	var start time.Time
	immediate := form.Get("immediate") == "on" || form.Get("immediate") == "true"
	if !immediate {
		raw := strings.TrimSpace(form.Get("begin_date"))
		if raw == "" {
			immediate = true
		} else {
			start, err = time.ParseInLocation(dateFormat, raw, time.Local)
			if err != nil {
				return recorder.Request{}, errors.New("invalid begin date, expected DD-MM-YYYY HH:MM")
			}
		}
	}

	end, err := time.ParseInLocation(dateFormat, strings.TrimSpace(form.Get("end_date")), time.Local)
	if err != nil {
		return recorder.Request{}, errors.New("invalid end date, expected DD-MM-YYYY HH:MM")
	}

	post := recorder.PostNone
	if form.Get("shutdown") == "on" || form.Get("shutdown") == "true" {
		post = recorder.PostShutdown
	}

	return recorder.Request{
		Device:  device,
		Channel: channel,
		Program: program,
		Start:   start,
		End:     end,
		Post:    post,
	}, nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rec.Cancel(id); err != nil {
		if errors.Is(err, recorder.ErrUnknownJob) {
			http.Error(w, "unknown job", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	type jobJSON struct {
		ID         string    `json:"id"`
		Program    string    `json:"program"`
		Channel    string    `json:"channel"`
		Device     int       `json:"device"`
		State      string    `json:"state"`
		Start      time.Time `json:"start"`
		End        time.Time `json:"end"`
		Output     string    `json:"output"`
		Error      string    `json:"error,omitempty"`
		PostAction string    `json:"post_action"`
	}
	jobs := s.rec.Jobs()
	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobJSON{
			ID:         j.ID,
			Program:    j.Request.Program,
			Channel:    j.Request.Channel,
			Device:     j.Request.Device,
			State:      j.State.String(),
			Start:      j.Request.Start,
			End:        j.Request.End,
			Output:     j.Output,
			Error:      j.Error,
			PostAction: j.Request.Post.String(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, []struct{}{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("history query failed", logx.Err(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

// flash redirects back to the form carrying a one-shot message in the
// query string. Cookie sessions are deliberately not used here.
func (s *Server) flash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	q := url.Values{}
	q.Set("kind", kind)
	q.Set("msg", msg)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// userMessage maps scheduler rejections to user-facing text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, recorder.ErrInvalidWindow):
		return "The start date must be in the future and before the end date."
	case errors.Is(err, recorder.ErrInvalidProgram):
		return "The program name must be between 5 and 128 characters."
	case errors.Is(err, recorder.ErrDurationExceeded):
		return "The recording is too long."
	case errors.Is(err, recorder.ErrUnknownChannel):
		return "That channel is not configured."
	case errors.Is(err, recorder.ErrDeviceOutOfRange):
		return "That tuner does not exist."
	case errors.Is(err, recorder.ErrConflict):
		return "That tuner is already booked for an overlapping time window."
	case errors.Is(err, recorder.ErrNotStarted):
		return "The recorder is not running."
	default:
		return "The recording could not be scheduled."
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response already underway; nothing useful to do.
		_ = err
	}
}
