package improvement

import "github.com/iso3dfd-st7/autotune/pkg/models"

// tabuList is a bounded FIFO of recently found best configurations.
// A zero capacity disables it.
type tabuList struct {
	capacity int
	items    []models.Configuration
}

func newTabuList(capacity int) *tabuList {
	return &tabuList{
		capacity: capacity,
		items:    make([]models.Configuration, 0, capacity),
	}
}

// push appends cfg, evicting the oldest entry when full
func (t *tabuList) push(cfg models.Configuration) {
	if t.capacity <= 0 {
		return
	}
	if len(t.items) == t.capacity {
		copy(t.items, t.items[1:])
		t.items = t.items[:len(t.items)-1]
	}
	t.items = append(t.items, cfg)
}

func (t *tabuList) contains(cfg models.Configuration) bool {
	for _, item := range t.items {
		if item == cfg {
			return true
		}
	}
	return false
}

// allowed returns the neighbors that are not tabu, preserving order
func (t *tabuList) allowed(neighbors []models.Configuration) []models.Configuration {
	out := make([]models.Configuration, 0, len(neighbors))
	for _, n := range neighbors {
		if !t.contains(n) {
			out = append(out, n)
		}
	}
	return out
}

func (t *tabuList) len() int {
	return len(t.items)
}

func (t *tabuList) snapshot() []models.Configuration {
	out := make([]models.Configuration, len(t.items))
	copy(out, t.items)
	return out
}
