package improvement

import (
	"fmt"
	"math"
)

// Schedule is a temperature decay law for the annealing strategies
type Schedule int

const (
	// ScheduleLinear decays T0 to zero over the iteration budget
	ScheduleLinear Schedule = iota + 1
	// ScheduleGeometric decays T0 to 1% of T0 over the iteration budget
	ScheduleGeometric
)

// geometricFloor is the fraction of T0 reached at the end of a geometric schedule
const geometricFloor = 0.01

// ParseSchedule resolves a decay name ("linear" or "geometric")
func ParseSchedule(name string) (Schedule, error) {
	switch name {
	case "linear":
		return ScheduleLinear, nil
	case "geometric":
		return ScheduleGeometric, nil
	default:
		return 0, invalidParam("temp_decay", name, "must be linear or geometric")
	}
}

func (s Schedule) String() string {
	switch s {
	case ScheduleLinear:
		return "linear"
	case ScheduleGeometric:
		return "geometric"
	default:
		return fmt.Sprintf("schedule(%d)", int(s))
	}
}

// cooling is a schedule bound to T0 and the iteration budget. The geometric
// ratio is computed once.
type cooling struct {
	schedule Schedule
	t0       float64
	kMax     int
	ratio    float64
}

func newCooling(s Schedule, t0 float64, kMax int) cooling {
	c := cooling{schedule: s, t0: t0, kMax: kMax}
	if s == ScheduleGeometric && kMax > 0 {
		c.ratio = math.Pow(10, math.Log10(geometricFloor)/float64(kMax))
	}
	return c
}

// at returns T(k)
func (c cooling) at(k int) float64 {
	if c.kMax <= 0 {
		return c.t0
	}
	switch c.schedule {
	case ScheduleLinear:
		return c.t0 * (1 - float64(k)/float64(c.kMax))
	case ScheduleGeometric:
		return math.Pow(c.ratio, float64(k)) * c.t0
	default:
		return c.t0
	}
}
