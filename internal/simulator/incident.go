package simulator

import (
	"fmt"
	"time"
)

type IncidentKind string

const (
	IncidentErrorSpike IncidentKind = "error_spike"
	IncidentAuthBurst  IncidentKind = "auth_burst"
	IncidentLatency    IncidentKind = "latency"
	IncidentNewRegion  IncidentKind = "new_region"
)

// Incident distorts a service's traffic over [Start, Start+Duration).
//
// Intensity means, per kind: the error fraction for error_spike, the number
// of failed logins per minute for auth_burst, the latency multiplier for
// latency and the fraction of traffic moved for new_region.
type Incident struct {
	Kind      IncidentKind  `json:"kind"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Intensity float64       `json:"intensity"`
	Region    string        `json:"region,omitempty"`
}

func (i Incident) End() time.Time {
	return i.Start.Add(i.Duration)
}

func (i Incident) Active(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End())
}

// withDefaults validates the kind and fills in a typical intensity.
func (i Incident) withDefaults() (Incident, error) {
	if i.Duration <= 0 {
		i.Duration = 5 * time.Minute
	}
	switch i.Kind {
	case IncidentErrorSpike:
		if i.Intensity <= 0 || i.Intensity > 1 {
			i.Intensity = 0.3
		}
	case IncidentAuthBurst:
		if i.Intensity <= 0 {
			i.Intensity = 30
		}
	case IncidentLatency:
		if i.Intensity <= 1 {
			i.Intensity = 5
		}
	case IncidentNewRegion:
		if i.Intensity <= 0 || i.Intensity > 1 {
			i.Intensity = 0.5
		}
		if i.Region == "" {
			i.Region = "ap-southeast-2"
		}
	default:
		return i, fmt.Errorf("unknown incident kind %q", i.Kind)
	}
	return i, nil
}
