package web

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/facility"
	"dininghours/internal/geo"
	"dininghours/internal/model"
	"dininghours/internal/status"
	"dininghours/internal/waittime"
)

type menuItemDTO struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Healthy     bool   `json:"healthy"`
	Description string `json:"description,omitempty"`
}

type menuCategoryDTO struct {
	Name  string        `json:"name"`
	Items []menuItemDTO `json:"items"`
}

type eventDTO struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Day         calday.Day        `json:"day"`
	Description string            `json:"description,omitempty"`
	Menu        []menuCategoryDTO `json:"menu,omitempty"`
}

type alertDTO struct {
	Posted  time.Time `json:"posted"`
	Message string    `json:"message"`
}

type facilitySummaryDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	IsOpen bool   `json:"is_open"`
}

type facilityDetailDTO struct {
	facilitySummaryDTO
	Coordinate *geo.Coordinate   `json:"coordinate,omitempty"`
	Features   facility.Features `json:"features"`
	Event      *eventDTO         `json:"event,omitempty"`
	Salient    *eventDTO         `json:"salient,omitempty"`
	Alerts     []alertDTO        `json:"alerts"`
}

type statusResponse struct {
	Facility string     `json:"facility"`
	At       time.Time  `json:"at"`
	Status   string     `json:"status"`
	IsOpen   bool       `json:"is_open"`
	Event    *eventDTO  `json:"event,omitempty"`
	Day      *dayEvents `json:"day,omitempty"`
}

// dayEvents are the selections restricted to one canonical day.
type dayEvents struct {
	Day      calday.Day `json:"day"`
	Current  *eventDTO  `json:"current,omitempty"`
	Next     *eventDTO  `json:"next,omitempty"`
	Previous *eventDTO  `json:"previous,omitempty"`
	Salient  *eventDTO  `json:"salient,omitempty"`
}

type waitDTO struct {
	At              time.Time `json:"at"`
	LowSeconds      float64   `json:"low_seconds"`
	ExpectedSeconds float64   `json:"expected_seconds"`
	HighSeconds     float64   `json:"high_seconds"`
}

type waitResponse struct {
	Facility string    `json:"facility"`
	At       time.Time `json:"at"`
	Wait     *waitDTO  `json:"wait"`
}

type etaResponse struct {
	Facility             string    `json:"facility"`
	Departure            time.Time `json:"departure"`
	WalkSeconds          *float64  `json:"walk_seconds"`
	Wait                 *waitDTO  `json:"wait"`
	ExpectedTotalSeconds *float64  `json:"expected_total_seconds"`
}

func toEventDTO(e model.Event) *eventDTO {
	out := &eventDTO{Start: e.Start, End: e.End, Day: e.Day, Description: e.Description}
	if e.Menu != nil {
		for _, c := range e.Menu.Categories {
			cat := menuCategoryDTO{Name: c.Name, Items: make([]menuItemDTO, 0, len(c.Items))}
			for _, it := range c.Items {
				cat.Items = append(cat.Items, menuItemDTO(it))
			}
			out.Menu = append(out.Menu, cat)
		}
	}
	return out
}

func optionalEvent(e model.Event, ok bool) *eventDTO {
	if !ok {
		return nil
	}
	return toEventDTO(e)
}

func toWaitDTO(s waittime.Sample) *waitDTO {
	return &waitDTO{
		At:              s.At,
		LowSeconds:      s.Low.Seconds(),
		ExpectedSeconds: s.Expected.Seconds(),
		HighSeconds:     s.High.Seconds(),
	}
}

func seconds(d time.Duration) *float64 {
	v := d.Seconds()
	return &v
}

func summarize(f *facility.Facility, st status.Status) facilitySummaryDTO {
	return facilitySummaryDTO{
		ID:     f.ID,
		Name:   f.Name,
		Status: st.Kind.String(),
		IsOpen: st.IsOpen(),
	}
}

func (s *Server) handleFacilities(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.loadSnapshot(w)
	if !ok {
		return
	}
	now := s.clock.Now()
	list := snap.List()
	out := make([]facilitySummaryDTO, 0, len(list))
	for _, f := range list {
		out = append(out, summarize(f, f.Status(now)))
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves the {id} path value, writing 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*facility.Facility, bool) {
	snap, ok := s.loadSnapshot(w)
	if !ok {
		return nil, false
	}
	id := r.PathValue("id")
	f, ok := snap.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown facility %q", id))
		return nil, false
	}
	return f, true
}

func (s *Server) handleFacility(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	now := s.clock.Now()
	st := f.Status(now)
	out := facilityDetailDTO{
		facilitySummaryDTO: summarize(f, st),
		Coordinate:         f.Coordinate,
		Features:           f.Features,
		Salient:            optionalEvent(status.Salient(f.Events, now)),
		Alerts:             make([]alertDTO, 0, len(f.Alerts)),
	}
	if st.Event != nil {
		out.Event = toEventDTO(*st.Event)
	}
	for _, a := range f.Alerts {
		out.Alerts = append(out.Alerts, alertDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	at, err := s.parseTime(q.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := f.Status(at)
	out := statusResponse{
		Facility: f.ID,
		At:       at,
		Status:   st.Kind.String(),
		IsOpen:   st.IsOpen(),
	}
	if st.Event != nil {
		out.Event = toEventDTO(*st.Event)
	}

	if raw := q.Get("day"); raw != "" {
		day, ok := calday.Parse(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid day %q, want YYYY-MM-DD", raw))
			return
		}
		on := status.OnDay(day)
		out.Day = &dayEvents{
			Day:      day,
			Current:  optionalEvent(status.Current(f.Events, at, on)),
			Next:     optionalEvent(status.Next(f.Events, at, on)),
			Previous: optionalEvent(status.Previous(f.Events, at, on)),
			Salient:  optionalEvent(status.Salient(f.Events, at, on)),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	at, err := s.parseTime(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := waitResponse{Facility: f.ID, At: at}
	if sample, ok := f.WaitTime(at); ok {
		out.Wait = toWaitDTO(sample)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleETA(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	depart, err := s.parseTime(q.Get("depart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := parseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	timing := f.TimingInfo(user, depart)
	out := etaResponse{Facility: f.ID, Departure: depart}
	if timing.Walk != nil {
		out.WalkSeconds = seconds(*timing.Walk)
	}
	if timing.Wait != nil {
		out.Wait = toWaitDTO(*timing.Wait)
	}
	if total, ok := timing.Total(); ok {
		out.ExpectedTotalSeconds = seconds(total)
	}
	writeJSON(w, http.StatusOK, out)
}

// parseTime accepts RFC 3339 or integer Unix seconds. Empty means now.
func (s *Server) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.clock.Now().In(calday.Location), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).In(calday.Location), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC 3339 or unix seconds", raw)
	}
	return t.In(calday.Location), nil
}

// parseCoordinate requires lat and lon together. Both empty yields nil.
func parseCoordinate(lat, lon string) (*geo.Coordinate, error) {
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("lat and lon must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || !finite(la) || la < -90 || la > 90 {
		return nil, fmt.Errorf("invalid lat %q", lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || !finite(lo) || lo < -180 || lo > 180 {
		return nil, fmt.Errorf("invalid lon %q", lon)
	}
	return &geo.Coordinate{Lat: la, Lon: lo}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
