package facility

import (
	"math"
	"testing"
	"time"

	"dininghours/internal/calday"
	"dininghours/internal/geo"
	"dininghours/internal/model"
	"dininghours/internal/status"
	"dininghours/internal/waittime"
)

var (
	hall = geo.Coordinate{Lat: 42.0, Lon: -76.0}
	// ~426m north of hall, i.e. ~300s at walking speed.
	nearby = geo.Coordinate{Lat: 42.0 + 426.0/111195.0, Lon: -76.0}
)

func closeTo(a, b, tol time.Duration) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestWalkTime(t *testing.T) {
	t.Parallel()

	f := &Facility{Coordinate: &hall}
	walk, ok := f.WalkTime(&nearby)
	if !ok {
		t.Fatalf("expected walk time")
	}
	if !closeTo(walk, 300*time.Second, time.Second) {
		t.Fatalf("expected ~300s, got %v", walk)
	}

	if _, ok := f.WalkTime(nil); ok {
		t.Fatalf("expected no walk time without user location")
	}
	if _, ok := (&Facility{}).WalkTime(&nearby); ok {
		t.Fatalf("expected no walk time without facility coordinate")
	}
	if _, ok := f.WalkTime(&geo.Coordinate{Lat: math.NaN(), Lon: -76.48}); ok {
		t.Fatalf("expected no walk time for a NaN coordinate")
	}
	if total, ok := f.ExpectedTotalTime(&geo.Coordinate{Lat: math.Inf(1), Lon: 0}, calday.New(2024, time.May, 6).At(12, 0)); ok {
		t.Fatalf("expected no total for a non-finite coordinate, got %v", total)
	}
}

func TestTimingSamplesWaitAtArrival(t *testing.T) {
	t.Parallel()

	departure := calday.New(2024, time.May, 1).At(12, 0)
	f := &Facility{Coordinate: &hall}
	walk, _ := f.WalkTime(&nearby)

	f.WaitTimes = waittime.ByDay{
		calday.FromTime(departure): waittime.New([]waittime.Sample{
			{At: departure, Expected: time.Minute},
			{At: departure.Add(walk), Expected: 2 * time.Minute},
		}, waittime.MethodNearest),
	}

	timing := f.TimingInfo(&nearby, departure)
	if timing.Walk == nil || *timing.Walk != walk {
		t.Fatalf("expected walk %v, got %v", walk, timing.Walk)
	}
	if timing.Wait == nil || timing.Wait.Expected != 2*time.Minute {
		t.Fatalf("expected the arrival sample, got %+v", timing.Wait)
	}

	noLocation := f.TimingInfo(nil, departure)
	if noLocation.Walk != nil {
		t.Fatalf("expected no walk without user location")
	}
	if noLocation.Wait == nil || noLocation.Wait.Expected != time.Minute {
		t.Fatalf("expected the departure sample, got %+v", noLocation.Wait)
	}
}

func TestExpectedTotalTime(t *testing.T) {
	t.Parallel()

	departure := calday.New(2024, time.May, 1).At(12, 0)
	waits := waittime.ByDay{
		calday.FromTime(departure): waittime.New([]waittime.Sample{
			{At: departure.Add(5 * time.Minute), Low: time.Minute, Expected: 120 * time.Second, High: 4 * time.Minute},
		}, waittime.MethodNearest),
	}

	t.Run("walk plus wait", func(t *testing.T) {
		f := &Facility{Coordinate: &hall, WaitTimes: waits}
		total, ok := f.ExpectedTotalTime(&nearby, departure)
		if !ok {
			t.Fatalf("expected a total")
		}
		if !closeTo(total, 420*time.Second, time.Second) {
			t.Fatalf("expected ~420s, got %v", total)
		}
	})

	t.Run("wait only", func(t *testing.T) {
		f := &Facility{WaitTimes: waits}
		total, ok := f.ExpectedTotalTime(nil, departure)
		if !ok || total != 120*time.Second {
			t.Fatalf("expected 120s, got %v ok=%v", total, ok)
		}
	})

	t.Run("walk only", func(t *testing.T) {
		f := &Facility{Coordinate: &hall}
		total, ok := f.ExpectedTotalTime(&nearby, departure)
		if !ok || !closeTo(total, 300*time.Second, time.Second) {
			t.Fatalf("expected ~300s, got %v ok=%v", total, ok)
		}
	})

	t.Run("neither", func(t *testing.T) {
		f := &Facility{}
		if total, ok := f.ExpectedTotalTime(nil, departure); ok {
			t.Fatalf("expected no total, got %v", total)
		}
	})

	t.Run("model for another day never applies", func(t *testing.T) {
		f := &Facility{WaitTimes: waits}
		if _, ok := f.WaitTime(departure.Add(24 * time.Hour)); ok {
			t.Fatalf("expected no wait on a different day")
		}
	})
}

func TestStatusDelegates(t *testing.T) {
	t.Parallel()

	start := calday.New(2024, time.May, 1).At(11, 0)
	f := &Facility{Events: []model.Event{{Start: start, End: start.Add(3 * time.Hour), Day: calday.FromTime(start)}}}

	if got := f.Status(start.Add(time.Hour)); got.Kind != status.Open {
		t.Fatalf("expected open, got %s", got.Kind)
	}
	if !f.IsOpen(start.Add(150 * time.Minute)) {
		t.Fatalf("expected closing soon to count as open")
	}
	if f.IsOpen(start.Add(-30 * time.Minute)) {
		t.Fatalf("expected opening soon to count as closed")
	}
}
