package improvement

import (
	"fmt"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
)

// Method identifies a search strategy
type Method string

const (
	MethodGreedy      Method = "ghc"
	MethodSA          Method = "sa"
	MethodTabuSA      Method = "tabu_sa"
	MethodTunnelingSA Method = "tunnel_sa"
	MethodLAHC        Method = "lahc"
)

// Methods lists every supported method in display order
var Methods = []Method{MethodGreedy, MethodSA, MethodTabuSA, MethodTunnelingSA, MethodLAHC}

// FullName returns the human readable name of the method
func (m Method) FullName() string {
	switch m {
	case MethodGreedy:
		return "Greedy Hill Climbing"
	case MethodSA:
		return "Simulated Annealing"
	case MethodTabuSA:
		return "Tabu Simulated Annealing"
	case MethodTunnelingSA:
		return "Tunneling Simulated Annealing"
	case MethodLAHC:
		return "Late Acceptance Hill Climbing"
	default:
		return string(m)
	}
}

// NewStrategy builds the strategy selected by the algorithm section
func NewStrategy(a config.Algorithm) (Strategy, error) {
	switch Method(a.Method) {
	case MethodGreedy:
		return NewGreedy(), nil
	case MethodSA:
		return NewSimulatedAnnealing(a.T0, a.TempDecay)
	case MethodTabuSA:
		return NewTabuSA(a.T0, a.TempDecay, a.TabuSize)
	case MethodTunnelingSA:
		return NewTunnelingSA(a.T0, a.TempDecay, a.CostFun, a.ETunnel)
	case MethodLAHC:
		return NewLAHC(a.Lh)
	default:
		return nil, invalidParam("method", a.Method, "unknown method")
	}
}

// NewOptimizerFromConfig wires a full optimizer from a loaded configuration
func NewOptimizerFromConfig(cfg *config.Config, oracle Oracle) (*Optimizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	strategy, err := NewStrategy(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(strategy, oracle, cfg.Problem, cfg.InitialConfiguration(), cfg.Algorithm.MaxIterations)
	if err != nil {
		return nil, err
	}
	opt.WithParallelism(cfg.Algorithm.Parallelism).WithLogger(logger.Default)
	if cfg.Algorithm.Seed != 0 {
		opt.WithSeed(cfg.Algorithm.Seed)
	}
	return opt, nil
}
