package web

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/clock"
	"dininghours/internal/config"
	"dininghours/internal/facility"
	"dininghours/internal/geo"
	appLog "dininghours/internal/log"
	"dininghours/internal/metrics"
	"dininghours/internal/model"
	"dininghours/internal/snapshot"
	"dininghours/internal/waittime"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var day = calday.New(2024, time.May, 6)

func testStore() *snapshot.Store {
	lunch := model.Event{Start: day.At(11, 0), End: day.At(14, 0), Day: day, Description: "Lunch"}
	dinner := model.Event{Start: day.At(17, 0), End: day.At(21, 0), Day: day, Description: "Dinner"}
	oken := &facility.Facility{
		ID:         "okenshields",
		Name:       "Okenshields",
		Coordinate: &geo.Coordinate{Lat: 0, Lon: 0},
		Events:     []model.Event{lunch, dinner},
		WaitTimes: waittime.ByDay{
			day: waittime.New([]waittime.Sample{
				{At: day.At(12, 0), Low: time.Minute, Expected: 2 * time.Minute, High: 3 * time.Minute},
			}, waittime.MethodNearest),
		},
		Alerts: []model.Alert{{Posted: day.At(9, 0), Message: "Grill closed"}},
	}
	vacant := &facility.Facility{ID: "vacant", Name: "Vacant"}

	store := &snapshot.Store{}
	store.Swap(&snapshot.Snapshot{
		Facilities: map[string]*facility.Facility{oken.ID: oken, vacant.ID: vacant},
		Order:      []string{"okenshields", "vacant"},
	})
	return store
}

func newTestServer(t *testing.T, store *snapshot.Store, opts ...Option) *httptest.Server {
	t.Helper()
	appLog.SetOutput(io.Discard)
	opts = append([]Option{WithClock(clock.NewFixed(day.At(12, 0)))}, opts...)
	srv := httptest.NewServer(NewServer(store, "127.0.0.1:0", opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: expected %d, got %d: %s", url, wantCode, resp.StatusCode, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &snapshot.Store{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", resp.StatusCode, body)
	}
}

func TestNoSnapshotIsUnavailable(t *testing.T) {
	srv := newTestServer(t, &snapshot.Store{})
	getJSON(t, srv.URL+"/api/facilities", http.StatusServiceUnavailable, nil)
}

func TestFacilities(t *testing.T) {
	srv := newTestServer(t, testStore())

	var got []facilitySummaryDTO
	getJSON(t, srv.URL+"/api/facilities", http.StatusOK, &got)
	if len(got) != 2 {
		t.Fatalf("expected 2 facilities, got %d", len(got))
	}
	if got[0].ID != "okenshields" || got[0].Status != "open" || !got[0].IsOpen {
		t.Fatalf("unexpected first facility: %+v", got[0])
	}
	if got[1].ID != "vacant" || got[1].Status != "closed" || got[1].IsOpen {
		t.Fatalf("unexpected second facility: %+v", got[1])
	}
}

func TestFacilityDetail(t *testing.T) {
	srv := newTestServer(t, testStore())

	var got facilityDetailDTO
	getJSON(t, srv.URL+"/api/facilities/okenshields", http.StatusOK, &got)
	if got.Event == nil || got.Event.Description != "Lunch" {
		t.Fatalf("expected current lunch event, got %+v", got.Event)
	}
	if got.Salient == nil || got.Salient.Description != "Lunch" {
		t.Fatalf("expected salient lunch event, got %+v", got.Salient)
	}
	if got.Event.Day != day {
		t.Fatalf("expected day %s, got %s", day, got.Event.Day)
	}
	if len(got.Alerts) != 1 || got.Alerts[0].Message != "Grill closed" {
		t.Fatalf("unexpected alerts: %+v", got.Alerts)
	}

	getJSON(t, srv.URL+"/api/facilities/nope", http.StatusNotFound, nil)
}

func TestStatusAt(t *testing.T) {
	srv := newTestServer(t, testStore())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"closing soon", "at=2024-05-06T13:30:00-04:00", "closing_soon"},
		{"opening soon", "at=2024-05-06T16:30:00-04:00", "opening_soon"},
		{"closed", "at=2024-05-06T15:00:00-04:00", "closed"},
		{"default now", "", "open"},
		{"unix seconds", "at=1715011200", "open"}, // 12:00 EDT
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got statusResponse
			getJSON(t, srv.URL+"/api/facilities/okenshields/status?"+tt.query, http.StatusOK, &got)
			if got.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Status)
			}
		})
	}

	getJSON(t, srv.URL+"/api/facilities/okenshields/status?at=yesterday", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/facilities/okenshields/status?day=2024-13-01", http.StatusBadRequest, nil)
}

func TestStatusDayFilter(t *testing.T) {
	srv := newTestServer(t, testStore())

	var got statusResponse
	getJSON(t, srv.URL+"/api/facilities/okenshields/status?at=2024-05-06T15:00:00-04:00&day=2024-05-06", http.StatusOK, &got)
	if got.Day == nil {
		t.Fatalf("expected day selections")
	}
	if got.Day.Current != nil {
		t.Fatalf("expected no current event, got %+v", got.Day.Current)
	}
	if got.Day.Next == nil || got.Day.Next.Description != "Dinner" {
		t.Fatalf("expected next dinner, got %+v", got.Day.Next)
	}
	if got.Day.Previous == nil || got.Day.Previous.Description != "Lunch" {
		t.Fatalf("expected previous lunch, got %+v", got.Day.Previous)
	}

	got = statusResponse{}
	getJSON(t, srv.URL+"/api/facilities/okenshields/status?at=2024-05-06T15:00:00-04:00&day=2024-05-07", http.StatusOK, &got)
	if got.Day == nil {
		t.Fatalf("expected day selections")
	}
	if got.Day.Next != nil || got.Day.Previous != nil || got.Day.Salient != nil {
		t.Fatalf("expected no events filed under another day, got %+v", got.Day)
	}
}

func TestWait(t *testing.T) {
	srv := newTestServer(t, testStore())

	var got waitResponse
	getJSON(t, srv.URL+"/api/facilities/okenshields/wait", http.StatusOK, &got)
	if got.Wait == nil || got.Wait.ExpectedSeconds != 120 {
		t.Fatalf("expected 120s wait, got %+v", got.Wait)
	}

	getJSON(t, srv.URL+"/api/facilities/vacant/wait", http.StatusOK, &got)
	if got.Wait != nil {
		t.Fatalf("expected no wait sample, got %+v", got.Wait)
	}
}

func TestETA(t *testing.T) {
	srv := newTestServer(t, testStore())

	var got etaResponse
	getJSON(t, srv.URL+"/api/facilities/okenshields/eta", http.StatusOK, &got)
	if got.WalkSeconds != nil {
		t.Fatalf("expected no walk without a user coordinate, got %v", *got.WalkSeconds)
	}
	if got.ExpectedTotalSeconds == nil || *got.ExpectedTotalSeconds != 120 {
		t.Fatalf("expected total 120s, got %v", got.ExpectedTotalSeconds)
	}

	// 0.0038 degrees of latitude is roughly 423 m.
	getJSON(t, srv.URL+"/api/facilities/okenshields/eta?lat=0.0038&lon=0", http.StatusOK, &got)
	if got.WalkSeconds == nil || *got.WalkSeconds < 290 || *got.WalkSeconds > 310 {
		t.Fatalf("expected about 300s walk, got %v", got.WalkSeconds)
	}
	if got.ExpectedTotalSeconds == nil || math.Abs(*got.ExpectedTotalSeconds-(*got.WalkSeconds+120)) > 1e-6 {
		t.Fatalf("expected walk plus 120s, got %v", got.ExpectedTotalSeconds)
	}

	getJSON(t, srv.URL+"/api/facilities/vacant/eta?lat=0&lon=0", http.StatusOK, &got)
	if got.ExpectedTotalSeconds != nil {
		t.Fatalf("expected no total, got %v", *got.ExpectedTotalSeconds)
	}

	getJSON(t, srv.URL+"/api/facilities/okenshields/eta?lat=1", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/facilities/okenshields/eta?lat=95&lon=0", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/facilities/okenshields/eta?lat=NaN&lon=-76.48", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/facilities/okenshields/eta?lat=0&lon=Inf", http.StatusBadRequest, nil)
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, testStore(), WithBasicAuth(&config.BasicAuthConfig{Username: "u", Password: "p"}))

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected /health to skip auth, got %d", resp.StatusCode)
	}

	getJSON(t, srv.URL+"/api/facilities", http.StatusUnauthorized, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/facilities", nil)
	req.SetBasicAuth("u", "p")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", resp.StatusCode)
	}
}

func TestMetricsCountsRequests(t *testing.T) {
	m := metrics.NewCollector()
	srv := newTestServer(t, testStore(), WithMetrics(m))

	getJSON(t, srv.URL+"/api/facilities/okenshields", http.StatusOK, nil)
	getJSON(t, srv.URL+"/api/facilities/nope", http.StatusNotFound, nil)

	route := "GET /api/facilities/{id}"
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues(route, "200")); got != 1 {
		t.Fatalf("expected one 200, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues(route, "404")); got != 1 {
		t.Fatalf("expected one 404, got %v", got)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dininghours_api_requests_total") {
		t.Fatalf("expected api request counter in exposition")
	}
}
