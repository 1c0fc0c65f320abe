// Package clock implements the in-game calendar: a minute counter from which
// time-of-day bands, days, seasons, years, and weather transitions are
// derived. The clock never reads wall time; it only moves when the session
// advances it by an action's minute cost.
package clock

import (
	"fmt"

	"github.com/emberforge/wayfarer/internal/rng"
)

// TimeOfDay is a coarse daylight band derived from the hour.
type TimeOfDay string

const (
	Night     TimeOfDay = "night"
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

// Season is one quarter of the game year.
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
	Winter Season = "winter"
)

var seasonOrder = []Season{Spring, Summer, Autumn, Winter}

// Weather is the current ambient weather state.
type Weather string

const (
	Clear  Weather = "clear"
	Cloudy Weather = "cloudy"
	Rain   Weather = "rain"
	Storm  Weather = "storm"
	Fog    Weather = "fog"
	Snow   Weather = "snow"
)

const (
	minutesPerDay  = 24 * 60
	daysPerSeason  = 30
	minutesPerHour = 60

	// weatherChancePerMinute makes a transition roughly once every few
	// in-game hours at typical action costs.
	weatherChancePerMinute = 0.002
)

// weatherTransitions is the table-driven state machine: for each current
// state, the candidate next states with relative weights.
var weatherTransitions = map[Weather][]weightedWeather{
	Clear:  {{Cloudy, 5}, {Fog, 2}, {Clear, 3}},
	Cloudy: {{Clear, 3}, {Rain, 4}, {Fog, 2}, {Cloudy, 1}},
	Rain:   {{Cloudy, 4}, {Storm, 2}, {Clear, 2}, {Rain, 2}},
	Storm:  {{Rain, 5}, {Cloudy, 3}, {Storm, 2}},
	Fog:    {{Clear, 4}, {Cloudy, 4}, {Fog, 2}},
	Snow:   {{Cloudy, 4}, {Clear, 3}, {Snow, 3}},
}

type weightedWeather struct {
	next   Weather
	weight int
}

// Clock holds the absolute in-game minute counter and the weather state.
// Not safe for concurrent use; the session's single-threaded frame loop is
// the only mutator.
type Clock struct {
	minutes int64
	weather Weather
	stream  *rng.Stream
}

// Change reports what an [Clock.Advance] call altered. The session turns a
// band or weather change into a time_changed event; delta is always carried
// in the event metadata.
type Change struct {
	Delta          int64
	BandChanged    bool
	DayChanged     bool
	SeasonChanged  bool
	WeatherChanged bool
	OldWeather     Weather
}

// New creates a Clock starting at startMinutes with the given weather.
// stream must be the session's weather sub-stream so replays reproduce the
// same transition sequence.
func New(startMinutes int64, weather Weather, stream *rng.Stream) *Clock {
	if weather == "" {
		weather = Clear
	}
	return &Clock{minutes: startMinutes, weather: weather, stream: stream}
}

// Advance adds delta minutes and returns what changed. Negative deltas are
// clamped to zero: game time is monotonic.
func (c *Clock) Advance(delta int64) Change {
	if delta < 0 {
		delta = 0
	}
	ch := Change{Delta: delta, OldWeather: c.weather}

	prevBand := c.TimeOfDay()
	prevDay := c.Day()
	prevSeason := c.Season()

	c.minutes += delta

	ch.BandChanged = c.TimeOfDay() != prevBand
	ch.DayChanged = c.Day() != prevDay
	ch.SeasonChanged = c.Season() != prevSeason

	// One weather draw per advance; probability scales with elapsed time.
	if delta > 0 && c.stream != nil {
		chance := float64(delta) * weatherChancePerMinute
		if chance > 1 {
			chance = 1
		}
		if c.stream.Roll(chance) {
			next := c.nextWeather()
			if next != c.weather {
				c.weather = next
				ch.WeatherChanged = true
			}
		}
	}
	return ch
}

// nextWeather draws a successor state from the transition table. Winter
// turns rain into snow.
func (c *Clock) nextWeather() Weather {
	candidates, ok := weatherTransitions[c.weather]
	if !ok {
		return c.weather
	}
	picked := rng.PickWeighted(c.stream, candidates, func(w weightedWeather) int { return w.weight })
	if picked.next == Rain && c.Season() == Winter {
		return Snow
	}
	return picked.next
}

// Minutes returns the absolute in-game minute counter.
func (c *Clock) Minutes() int64 { return c.minutes }

// Hour returns the hour of day in [0, 24).
func (c *Clock) Hour() int { return int(c.minutes % minutesPerDay / minutesPerHour) }

// Minute returns the minute of the hour in [0, 60).
func (c *Clock) Minute() int { return int(c.minutes % minutesPerHour) }

// TimeString formats the clock as "HH:MM".
func (c *Clock) TimeString() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// TimeOfDay returns the current daylight band. Bands follow fixed hour
// thresholds: night before 06:00, morning before 12:00, afternoon before
// 18:00, evening before 22:00, then night again.
func (c *Clock) TimeOfDay() TimeOfDay {
	switch h := c.Hour(); {
	case h < 6:
		return Night
	case h < 12:
		return Morning
	case h < 18:
		return Afternoon
	case h < 22:
		return Evening
	default:
		return Night
	}
}

// Day returns the 1-based day counter.
func (c *Clock) Day() int { return int(c.minutes/minutesPerDay) + 1 }

// Season returns the current season; seasons roll every 30 days.
func (c *Clock) Season() Season {
	idx := (c.Day() - 1) / daysPerSeason % len(seasonOrder)
	return seasonOrder[idx]
}

// Year returns the 1-based year counter; a year is four seasons.
func (c *Clock) Year() int {
	return (c.Day()-1)/(daysPerSeason*len(seasonOrder)) + 1
}

// Weather returns the current weather state.
func (c *Clock) Weather() Weather { return c.weather }

// SetWeather overrides the weather state. Used when restoring a session
// from a replay checkpoint.
func (c *Clock) SetWeather(w Weather) { c.weather = w }
