package improvement

import (
	"errors"
	"math"
	"testing"
)

func TestParseSchedule(t *testing.T) {
	for _, name := range []string{"linear", "geometric"} {
		s, err := ParseSchedule(name)
		if err != nil {
			t.Fatalf("ParseSchedule(%q) failed: %v", name, err)
		}
		if s.String() != name {
			t.Errorf("expected %q, got %q", name, s.String())
		}
	}

	_, err := ParseSchedule("cosine")
	var invalid *InvalidHyperparameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidHyperparameterError, got %v", err)
	}
	if invalid.Name != "temp_decay" {
		t.Errorf("expected name temp_decay, got %q", invalid.Name)
	}
}

func TestCoolingLinear(t *testing.T) {
	c := newCooling(ScheduleLinear, 100, 4)
	want := []float64{100, 75, 50, 25, 0}
	for k, w := range want {
		if got := c.at(k); math.Abs(got-w) > 1e-9 {
			t.Errorf("T(%d) = %f, want %f", k, got, w)
		}
	}
}

func TestCoolingGeometric(t *testing.T) {
	c := newCooling(ScheduleGeometric, 100, 10)
	if got := c.at(0); math.Abs(got-100) > 1e-9 {
		t.Errorf("T(0) = %f, want 100", got)
	}
	if got := c.at(10); math.Abs(got-1) > 1e-9 {
		t.Errorf("T(kmax) = %f, want 1", got)
	}
	for k := 1; k <= 10; k++ {
		if c.at(k) >= c.at(k-1) {
			t.Fatalf("geometric schedule not decreasing at %d", k)
		}
	}
}

func TestCoolingZeroBudget(t *testing.T) {
	for _, s := range []Schedule{ScheduleLinear, ScheduleGeometric} {
		c := newCooling(s, 42, 0)
		if got := c.at(3); got != 42 {
			t.Errorf("%s with kmax=0: expected T0, got %f", s, got)
		}
	}
}
