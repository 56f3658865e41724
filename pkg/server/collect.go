package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/solarpull/solarpull/pkg/energy"
	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/sites"
	"github.com/solarpull/solarpull/pkg/types"
	"github.com/solarpull/solarpull/pkg/window"
)

const dateLayout = "2006-01-02"

// rangeRequest is the site, range and sampling interval named by a request's
// query string.
type rangeRequest struct {
	site            types.Site
	start           time.Time
	end             time.Time
	intervalMinutes int
	granularity     types.Granularity
}

type collectResponse struct {
	SiteID string    `json:"siteID"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Stored bool      `json:"stored"`
}

type productionResponse struct {
	types.SiteSeries
	Unit  string  `json:"unit"`
	Total float64 `json:"total"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := s.parseRangeRequest(w, r)
	if !ok {
		return
	}

	err := s.collector.CollectSite(ctx, req.site, req.start, req.end, req.intervalMinutes)
	if err != nil && !errors.Is(err, window.ErrNoData) {
		s.writeRangeError(w, r, req, err)
		return
	}

	writeJSON(w, collectResponse{
		SiteID: req.site.ID,
		Start:  req.start,
		End:    req.end,
		Stored: err == nil,
	})
}

func (s *Server) handleProduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := s.parseRangeRequest(w, r)
	if !ok {
		return
	}

	blocks, err := s.assembler.Assemble(ctx, req.site, req.start, req.end, req.granularity)
	if err != nil {
		if errors.Is(err, window.ErrNoData) {
			writeJSONError(w, "no data for range", http.StatusNotFound)
			return
		}
		s.writeRangeError(w, r, req, err)
		return
	}
	series, err := energy.SiteProduction(req.site.ID, blocks, req.granularity.SampleInterval())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to convert production", slog.String("siteID", req.site.ID), slog.Any("error", err))
		writeJSONError(w, "failed to convert production", http.StatusInternalServerError)
		return
	}

	// past ranges never change so they can be cached for a day
	if req.end.Before(req.granularity.Truncate(s.now().In(req.site.Location()))) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, productionResponse{
		SiteSeries: series,
		Unit:       "Wh",
		Total:      series.Total(),
	})
}

func (s *Server) writeRangeError(w http.ResponseWriter, r *http.Request, req rangeRequest, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, window.ErrInvalidRange):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, window.ErrAcquisition):
		log.Ctx(ctx).ErrorContext(ctx, "portal acquisition failed", slog.String("siteID", req.site.ID), slog.Any("error", err))
		writeJSONError(w, "portal unavailable", http.StatusBadGateway)
	case ctx.Err() != nil:
		// the client went away
		panic(http.ErrAbortHandler)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "request failed", slog.String("siteID", req.site.ID), slog.Any("error", err))
		writeJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// parseRangeRequest reads siteID, start, end and interval from the query. It
// writes the error response itself and returns false when the request is
// invalid.
func (s *Server) parseRangeRequest(w http.ResponseWriter, r *http.Request) (rangeRequest, bool) {
	ctx := r.Context()
	q := r.URL.Query()

	siteID := q.Get("siteID")
	if siteID == "" {
		writeJSONError(w, "siteID required", http.StatusBadRequest)
		return rangeRequest{}, false
	}
	site, err := s.sites.Get(siteID)
	if err != nil {
		if errors.Is(err, sites.ErrSiteNotFound) {
			writeJSONError(w, "unknown site", http.StatusNotFound)
			return rangeRequest{}, false
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get site", slog.String("siteID", siteID), slog.Any("error", err))
		writeJSONError(w, "failed to get site", http.StatusInternalServerError)
		return rangeRequest{}, false
	}

	interval := 1
	if v := q.Get("interval"); v != "" {
		interval, err = strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid interval", http.StatusBadRequest)
			return rangeRequest{}, false
		}
	}
	g, err := types.GranularityForInterval(interval)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return rangeRequest{}, false
	}

	start, end, err := parseTimeRange(q.Get("start"), q.Get("end"), site.Location())
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return rangeRequest{}, false
	}

	return rangeRequest{
		site:            site,
		start:           start,
		end:             end,
		intervalMinutes: interval,
		granularity:     g,
	}, true
}

// parseTimeRange accepts RFC3339 timestamps or YYYY-MM-DD dates, which are
// midnight in loc.
func parseTimeRange(startStr, endStr string, loc *time.Location) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}
	start, err := parseTime(startStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := parseTime(endStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end must be after start")
	}
	return start, end, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	if len(v) == len(dateLayout) {
		return time.ParseInLocation(dateLayout, v, loc)
	}
	return time.Parse(time.RFC3339, v)
}
