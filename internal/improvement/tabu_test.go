package improvement

import (
	"testing"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

func tabuConfig(b2 int) models.Configuration {
	cfg := testStart()
	cfg.Block2 = b2
	return cfg
}

func TestTabuListEvictsOldest(t *testing.T) {
	list := newTabuList(3)
	for b2 := 1; b2 <= 5; b2++ {
		list.push(tabuConfig(b2))
		if list.len() > 3 {
			t.Fatalf("tabu list exceeded capacity: %d", list.len())
		}
	}

	got := list.snapshot()
	for i, b2 := range []int{3, 4, 5} {
		if got[i] != tabuConfig(b2) {
			t.Errorf("slot %d: expected block2=%d, got %v", i, b2, got[i])
		}
	}
	if list.contains(tabuConfig(1)) {
		t.Error("oldest entry should have been evicted")
	}
}

func TestTabuListZeroCapacity(t *testing.T) {
	list := newTabuList(0)
	list.push(tabuConfig(2))
	if list.len() != 0 {
		t.Fatalf("expected disabled list to stay empty, got %d", list.len())
	}
	if got := list.allowed([]models.Configuration{tabuConfig(2)}); len(got) != 1 {
		t.Fatalf("expected every neighbor allowed, got %v", got)
	}
}

func TestTabuListAllowedKeepsOrder(t *testing.T) {
	list := newTabuList(2)
	list.push(tabuConfig(2))

	got := list.allowed([]models.Configuration{tabuConfig(1), tabuConfig(2), tabuConfig(3)})
	if len(got) != 2 || got[0] != tabuConfig(1) || got[1] != tabuConfig(3) {
		t.Fatalf("unexpected allowed list %v", got)
	}
}
