package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/kasametrics/internal/collector"
	"github.com/nerrad567/kasametrics/internal/device"
)

// Limits for /api/v1/cycles.
const (
	defaultCycleLimit = 20
	maxCycleLimit     = 500
)

// healthCheckTimeout bounds each backend check run by /healthz.
const healthCheckTimeout = 3 * time.Second

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Scheduler string            `json:"scheduler,omitempty"`
	Cycles    uint64            `json:"cycles"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth reports the scheduler state and runs every backend check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler.State().String()
		resp.Cycles = s.scheduler.Cycles()
	}

	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

type deviceResultResponse struct {
	Address      string `json:"address"`
	Feed         string `json:"feed,omitempty"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
	Measurements int    `json:"measurements"`
}

type cycleResponse struct {
	ID           string                 `json:"id"`
	StartedAt    time.Time              `json:"started_at"`
	DurationMS   int64                  `json:"duration_ms"`
	OK           int                    `json:"devices_ok"`
	TimedOut     int                    `json:"devices_timeout"`
	Failed       int                    `json:"devices_failed"`
	Skipped      int                    `json:"devices_skipped"`
	Measurements int                    `json:"measurements"`
	WriteError   string                 `json:"write_error,omitempty"`
	Devices      []deviceResultResponse `json:"devices,omitempty"`
}

func newCycleResponse(r collector.CycleReport) cycleResponse {
	resp := cycleResponse{
		ID:           r.ID,
		StartedAt:    r.Start.UTC(),
		DurationMS:   r.Duration.Milliseconds(),
		OK:           r.OK,
		TimedOut:     r.TimedOut,
		Failed:       r.Failed,
		Skipped:      r.Skipped,
		Measurements: r.Measurements,
	}
	if r.WriteErr != nil {
		resp.WriteError = r.WriteErr.Error()
	}
	for _, d := range r.Devices {
		resp.Devices = append(resp.Devices, deviceResultResponse(d))
	}
	return resp
}

// handleListCycles returns recent cycle reports, newest first.
func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	limit := defaultCycleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCycleLimit)
	}

	reports, err := s.cycles.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing cycles failed", "error", err)
		writeInternalError(w, "failed to list cycles")
		return
	}

	cycles := make([]cycleResponse, 0, len(reports))
	for _, rep := range reports {
		cycles = append(cycles, newCycleResponse(rep))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

type deviceResponse struct {
	Address     string            `json:"address"`
	Feed        string            `json:"feed,omitempty"`
	Kind        string            `json:"kind"`
	Tags        map[string]string `json:"tags,omitempty"`
	Channels    []string          `json:"channels,omitempty"`
	Polled      bool              `json:"polled"`
	LastOutcome string            `json:"last_outcome,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	LastPoll    *time.Time        `json:"last_poll,omitempty"`
	LastSuccess *time.Time        `json:"last_success,omitempty"`
	Snapshot    *device.Snapshot  `json:"snapshot,omitempty"`
}

func newDeviceResponse(st device.Status) deviceResponse {
	resp := deviceResponse{
		Address:   st.Entry.Address,
		Feed:      st.Entry.Feed,
		Kind:      st.Entry.Kind.String(),
		Tags:      st.Entry.Tags,
		Channels:  st.Entry.Channels,
		Polled:    st.Polled,
		LastError: st.LastError,
		Snapshot:  st.Snapshot,
	}
	if st.Polled {
		resp.LastOutcome = st.LastOutcome.String()
		resp.LastPoll = timePtr(st.LastPoll)
	}
	resp.LastSuccess = timePtr(st.LastSuccess)
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// handleListDevices returns the poll status of every configured device
// in address order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	statuses := s.devices.Status()
	devices := make([]deviceResponse, 0, len(statuses))
	for _, st := range statuses {
		devices = append(devices, newDeviceResponse(st))
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device by feed.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	feed := chi.URLParam(r, "feed")
	for _, st := range s.devices.Status() {
		if st.Entry.Feed == feed {
			writeJSON(w, http.StatusOK, newDeviceResponse(st))
			return
		}
	}
	writeNotFound(w, "no device reports feed "+strconv.Quote(feed))
}
