package clock

import (
	"testing"

	"github.com/emberforge/wayfarer/internal/rng"
)

func weatherStream(seed int64) *rng.Stream {
	return rng.New(seed).Stream(rng.StreamWeather)
}

func TestTimeOfDayBands(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{0, Night},
		{5, Night},
		{6, Morning},
		{11, Morning},
		{12, Afternoon},
		{17, Afternoon},
		{18, Evening},
		{21, Evening},
		{22, Night},
		{23, Night},
	}
	for _, tt := range tests {
		c := New(int64(tt.hour)*60, Clear, nil)
		if got := c.TimeOfDay(); got != tt.want {
			t.Errorf("hour %d: TimeOfDay() = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestAdvanceReportsBandChange(t *testing.T) {
	c := New(5*60+50, Clear, weatherStream(1)) // 05:50, night

	ch := c.Advance(5) // 05:55, still night
	if ch.BandChanged {
		t.Fatal("band change reported without crossing a threshold")
	}

	ch = c.Advance(10) // 06:05, morning
	if !ch.BandChanged {
		t.Fatal("crossing 06:00 did not report a band change")
	}
	if ch.Delta != 10 {
		t.Fatalf("Delta = %d, want 10", ch.Delta)
	}
}

func TestDaySeasonYearRollover(t *testing.T) {
	c := New(0, Clear, nil)
	if c.Day() != 1 || c.Season() != Spring || c.Year() != 1 {
		t.Fatalf("start = day %d season %s year %d", c.Day(), c.Season(), c.Year())
	}

	c.Advance(24 * 60 * 30) // 30 days
	if c.Season() != Summer {
		t.Fatalf("after 30 days Season() = %q, want summer", c.Season())
	}

	c = New(0, Clear, nil)
	c.Advance(24 * 60 * 120) // full year
	if c.Year() != 2 {
		t.Fatalf("after 120 days Year() = %d, want 2", c.Year())
	}
}

func TestNegativeDeltaClamped(t *testing.T) {
	c := New(100, Clear, nil)
	ch := c.Advance(-50)
	if ch.Delta != 0 {
		t.Fatalf("Delta = %d, want 0", ch.Delta)
	}
	if c.Minutes() != 100 {
		t.Fatalf("Minutes() = %d, want 100 (monotonic)", c.Minutes())
	}
}

func TestTimeString(t *testing.T) {
	c := New(9*60+7, Clear, nil)
	if got := c.TimeString(); got != "09:07" {
		t.Fatalf("TimeString() = %q, want 09:07", got)
	}
}

func TestWeatherSequenceIsReproducible(t *testing.T) {
	run := func() []Weather {
		c := New(0, Clear, weatherStream(12345))
		var seq []Weather
		for i := 0; i < 200; i++ {
			c.Advance(60)
			seq = append(seq, c.Weather())
		}
		return seq
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("weather diverged at step %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestWeatherEventuallyTransitions(t *testing.T) {
	c := New(0, Clear, weatherStream(7))
	changed := false
	for i := 0; i < 500; i++ {
		if ch := c.Advance(60); ch.WeatherChanged {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatal("weather never transitioned over 500 hours")
	}
}
