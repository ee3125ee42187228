package improvement

import (
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// NeighborGenerator enumerates the configurations one elementary move away
// from base. The result must depend only on the arguments.
type NeighborGenerator interface {
	// GenerateNeighbors returns the ordered neighbor list of base
	GenerateNeighbors(base models.Configuration, size models.ProblemSize) []models.Configuration
	// Name returns the name of the exploration strategy
	Name() string
}

// simdMoves lists, per SIMD level, the other levels in enumeration order.
// The order is part of the search graph: greedy tie-breaking depends on it.
var simdMoves = map[models.SIMD][]models.SIMD{
	models.SIMDAVX:    {models.SIMDAVX2, models.SIMDAVX512, models.SIMDSSE},
	models.SIMDAVX2:   {models.SIMDAVX, models.SIMDAVX512, models.SIMDSSE},
	models.SIMDAVX512: {models.SIMDAVX2, models.SIMDAVX, models.SIMDSSE},
	models.SIMDSSE:    {models.SIMDAVX2, models.SIMDAVX512, models.SIMDAVX},
}

// DefaultExplorer implements the iso3dfd move set: toggle the optimization
// level, switch SIMD level, keep the thread count, and step each cache block
// dimension up or down.
type DefaultExplorer struct {
	block1Step int
	blockStep  int
}

// NewDefaultExplorer creates a new default parameter explorer
func NewDefaultExplorer() *DefaultExplorer {
	return &DefaultExplorer{
		block1Step: models.Block1Step,
		blockStep:  1,
	}
}

func (e *DefaultExplorer) Name() string {
	return "default"
}

// GenerateNeighbors generates neighboring configurations field by field
func (e *DefaultExplorer) GenerateNeighbors(base models.Configuration, size models.ProblemSize) []models.Configuration {
	neighbors := make([]models.Configuration, 0, 11)

	// 1. Optimization level
	neighbors = append(neighbors, e.exploreOptLevel(base)...)

	// 2. Vector instruction set
	neighbors = append(neighbors, e.exploreSIMD(base)...)

	// 3. Thread count
	neighbors = append(neighbors, e.exploreThreads(base)...)

	// 4. Cache blocking
	neighbors = append(neighbors, e.exploreBlocks(base, size)...)

	return neighbors
}

func (e *DefaultExplorer) exploreOptLevel(base models.Configuration) []models.Configuration {
	neighbor := base
	switch base.OptLevel {
	case models.OptLevelO3:
		neighbor.OptLevel = models.OptLevelOfast
	case models.OptLevelOfast:
		neighbor.OptLevel = models.OptLevelO3
	default:
		return nil
	}
	return []models.Configuration{neighbor}
}

func (e *DefaultExplorer) exploreSIMD(base models.Configuration) []models.Configuration {
	moves := simdMoves[base.SIMD]
	neighbors := make([]models.Configuration, 0, len(moves))
	for _, simd := range moves {
		neighbor := base
		neighbor.SIMD = simd
		neighbors = append(neighbors, neighbor)
	}
	return neighbors
}

// exploreThreads keeps 16 and 32 as their own neighbor. Other counts have none.
func (e *DefaultExplorer) exploreThreads(base models.Configuration) []models.Configuration {
	if base.Threads == 16 || base.Threads == 32 {
		return []models.Configuration{base}
	}
	return nil
}

// exploreBlocks only emits moves that keep every block inside its bounds
func (e *DefaultExplorer) exploreBlocks(base models.Configuration, size models.ProblemSize) []models.Configuration {
	neighbors := make([]models.Configuration, 0, 6)

	if base.Block1-e.block1Step >= models.MinBlock1 {
		neighbor := base
		neighbor.Block1 -= e.block1Step
		neighbors = append(neighbors, neighbor)
	}
	if base.Block1+e.block1Step <= size.N1 {
		neighbor := base
		neighbor.Block1 += e.block1Step
		neighbors = append(neighbors, neighbor)
	}

	if base.Block2-e.blockStep >= models.MinBlock2 {
		neighbor := base
		neighbor.Block2 -= e.blockStep
		neighbors = append(neighbors, neighbor)
	}
	if base.Block2+e.blockStep <= size.N2 {
		neighbor := base
		neighbor.Block2 += e.blockStep
		neighbors = append(neighbors, neighbor)
	}

	if base.Block3-e.blockStep >= models.MinBlock3 {
		neighbor := base
		neighbor.Block3 -= e.blockStep
		neighbors = append(neighbors, neighbor)
	}
	if base.Block3+e.blockStep <= size.N3 {
		neighbor := base
		neighbor.Block3 += e.blockStep
		neighbors = append(neighbors, neighbor)
	}

	return neighbors
}

// Neighbors returns the default neighborhood of cfg
func Neighbors(cfg models.Configuration, size models.ProblemSize) []models.Configuration {
	return NewDefaultExplorer().GenerateNeighbors(cfg, size)
}
