package improvement

import (
	"fmt"
	"math"
)

// CostFunction selects the tunneling transform applied to raw scores
type CostFunction int

const (
	// CostAverage pulls sub-threshold scores halfway toward the tunnel energy
	CostAverage CostFunction = iota + 1
	// CostStochastic maps scores through exp(-gamma*(E_tunnel-raw)) - 1
	CostStochastic
)

// TunnelGamma is the steepness of the stochastic tunneling transform
const TunnelGamma = 0.004

// ParseCostFunction resolves a cost function name ("average" or "stochastic")
func ParseCostFunction(name string) (CostFunction, error) {
	switch name {
	case "average":
		return CostAverage, nil
	case "stochastic":
		return CostStochastic, nil
	default:
		return 0, invalidParam("cost_fun", name, "must be average or stochastic")
	}
}

func (c CostFunction) String() string {
	switch c {
	case CostAverage:
		return "average"
	case CostStochastic:
		return "stochastic"
	default:
		return fmt.Sprintf("cost_function(%d)", int(c))
	}
}

// Transform maps a raw score to the steering score used for acceptance
func (c CostFunction) Transform(raw, eTunnel float64) float64 {
	switch c {
	case CostAverage:
		if raw < eTunnel {
			return (raw + eTunnel) / 2
		}
		return raw
	case CostStochastic:
		return math.Exp(-TunnelGamma*(eTunnel-raw)) - 1
	default:
		return raw
	}
}
