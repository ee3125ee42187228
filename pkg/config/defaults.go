package config

import "github.com/iso3dfd-st7/autotune/pkg/models"

// Default returns the configuration used when a field is left out
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Problem:   models.ProblemSize{N1: 256, N2: 256, N3: 256},
		Algorithm: Algorithm{
			Method:        "sa",
			MaxIterations: 200,
			T0:            100,
			TempDecay:     "geometric",
			TabuSize:      5,
			CostFun:       "stochastic",
			ETunnel:       0,
			Lh:            10,
			Parallelism:   1,
			Repeat:        1,
		},
		Benchmark: Benchmark{
			SourceDir:  "~/iso3dfd-st7",
			BinDir:     "bin",
			TimeSteps:  100,
			Affinity:   "balanced,granularity=core",
			MakeTarget: "last",
			Energy: Energy{
				Monitor:    "/opt/cpu_monitor/cpu_monitor.x",
				PlotCmd:    "/opt/cpu_monitor/scripts/plot_grp2.sh",
				WorkDir:    "/opt/cpu_monitor/scripts",
				CSVPath:    "/opt/cpu_monitor/scripts/current_csv.csv",
				MaxPowerMW: 8000,
			},
		},
		Results: Results{
			Backend:    "file",
			Dir:        "results",
			SQLitePath: "results/trials.db",
		},
		Server: Server{
			GRPCAddr: ":50051",
			HTTPAddr: ":8080",
		},
	}
}
