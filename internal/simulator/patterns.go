package simulator

import (
	"fmt"
	"math"
	"time"
)

// Pattern scales a service's base request rate at a point in time.
type Pattern interface {
	Multiplier(t time.Time) float64
	Name() string
}

var (
	PatternSteady Pattern = &SteadyPattern{}
	PatternDaily  Pattern = &DailyPattern{}
	PatternWeekly Pattern = &WeeklyPattern{}
)

func ParsePattern(name string) (Pattern, error) {
	switch name {
	case "", "steady":
		return PatternSteady, nil
	case "daily":
		return PatternDaily, nil
	case "weekly":
		return PatternWeekly, nil
	case "sine_wave":
		return &SineWavePattern{}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", name)
	}
}

// SteadyPattern - constant load
type SteadyPattern struct{}

func (p *SteadyPattern) Multiplier(time.Time) float64 {
	return 1
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// DailyPattern - busy business hours, quiet nights
type DailyPattern struct{}

func dailyModifier(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour >= 0 && hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

func (p *DailyPattern) Multiplier(t time.Time) float64 {
	return dailyModifier(t.Hour())
}

func (p *DailyPattern) Name() string {
	return "daily"
}

// WeeklyPattern - the daily cycle on weekdays, half load at weekends
type WeeklyPattern struct{}

func (p *WeeklyPattern) Multiplier(t time.Time) float64 {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 0.5
	}
	return dailyModifier(t.Hour())
}

func (p *WeeklyPattern) Name() string {
	return "weekly"
}

// SineWavePattern - smooth oscillation around the base rate
type SineWavePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p *SineWavePattern) Multiplier(t time.Time) float64 {
	period := p.Period
	if period == 0 {
		period = time.Hour
	}
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 0.3
	}

	phase := float64(t.UnixNano()) / float64(period.Nanoseconds()) * 2 * math.Pi
	return math.Max(0.1, 1+math.Sin(phase)*amplitude)
}

func (p *SineWavePattern) Name() string {
	return "sine_wave"
}
