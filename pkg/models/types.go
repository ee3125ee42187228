package models

import (
	"fmt"
	"strconv"
	"strings"
)

// OptLevel is the compiler optimization level used to build the benchmark
type OptLevel string

const (
	OptLevelO3    OptLevel = "O3"
	OptLevelOfast OptLevel = "Ofast"
)

// SIMD is the vector instruction set the benchmark is compiled for
type SIMD string

const (
	SIMDSSE    SIMD = "sse"
	SIMDAVX    SIMD = "avx"
	SIMDAVX2   SIMD = "avx2"
	SIMDAVX512 SIMD = "avx512"
)

// Minimum cache block sizes per dimension
const (
	MinBlock1 = 16
	MinBlock2 = 1
	MinBlock3 = 1

	// Block1Step is the move size along the first (vectorized) dimension
	Block1Step = 16
)

// Valid reports whether the level is a known optimization level
func (o OptLevel) Valid() bool {
	return o == OptLevelO3 || o == OptLevelOfast
}

// Valid reports whether the value is a known SIMD level
func (s SIMD) Valid() bool {
	switch s {
	case SIMDSSE, SIMDAVX, SIMDAVX2, SIMDAVX512:
		return true
	}
	return false
}

// ProblemSize is the grid size handed to the benchmark. It also bounds the
// cache block dimensions of a Configuration.
type ProblemSize struct {
	N1 int `json:"n1" yaml:"n1" toml:"n1"`
	N2 int `json:"n2" yaml:"n2" toml:"n2"`
	N3 int `json:"n3" yaml:"n3" toml:"n3"`
}

// Validate checks that every dimension can hold at least one minimal block
func (p ProblemSize) Validate() error {
	if p.N1 < MinBlock1 {
		return fmt.Errorf("n1 must be >= %d, got %d", MinBlock1, p.N1)
	}
	if p.N2 < MinBlock2 {
		return fmt.Errorf("n2 must be >= %d, got %d", MinBlock2, p.N2)
	}
	if p.N3 < MinBlock3 {
		return fmt.Errorf("n3 must be >= %d, got %d", MinBlock3, p.N3)
	}
	return nil
}

func (p ProblemSize) String() string {
	return fmt.Sprintf("%dx%dx%d", p.N1, p.N2, p.N3)
}

// Configuration is one point of the search space. It is a plain comparable
// value: two configurations are the same point iff their fields are equal.
type Configuration struct {
	OptLevel OptLevel `json:"opt_level" yaml:"opt_level" toml:"opt_level"`
	SIMD     SIMD     `json:"simd" yaml:"simd" toml:"simd"`
	Threads  int      `json:"threads" yaml:"threads" toml:"threads"`
	Block1   int      `json:"block1" yaml:"block1" toml:"block1"`
	Block2   int      `json:"block2" yaml:"block2" toml:"block2"`
	Block3   int      `json:"block3" yaml:"block3" toml:"block3"`
}

// DefaultConfiguration returns the starting point used when none is given
func DefaultConfiguration(size ProblemSize) Configuration {
	return Configuration{
		OptLevel: OptLevelOfast,
		SIMD:     SIMDAVX512,
		Threads:  32,
		Block1:   size.N1,
		Block2:   4,
		Block3:   4,
	}
}

// Validate checks enum membership and the block bounds for the given problem size
func (c Configuration) Validate(size ProblemSize) error {
	if !c.OptLevel.Valid() {
		return fmt.Errorf("invalid opt level %q (must be O3 or Ofast)", c.OptLevel)
	}
	if !c.SIMD.Valid() {
		return fmt.Errorf("invalid simd %q (must be sse, avx, avx2 or avx512)", c.SIMD)
	}
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.Block1 < MinBlock1 || c.Block1 > size.N1 {
		return fmt.Errorf("block1 %d out of range [%d, %d]", c.Block1, MinBlock1, size.N1)
	}
	if c.Block2 < MinBlock2 || c.Block2 > size.N2 {
		return fmt.Errorf("block2 %d out of range [%d, %d]", c.Block2, MinBlock2, size.N2)
	}
	if c.Block3 < MinBlock3 || c.Block3 > size.N3 {
		return fmt.Errorf("block3 %d out of range [%d, %d]", c.Block3, MinBlock3, size.N3)
	}
	return nil
}

// String renders the configuration as six space separated fields, the same
// order the benchmark command line and ParseConfiguration use.
func (c Configuration) String() string {
	return fmt.Sprintf("%s %s %d %d %d %d", c.OptLevel, c.SIMD, c.Threads, c.Block1, c.Block2, c.Block3)
}

// ParseConfiguration parses the six field form produced by String.
// Fields may be separated by spaces or commas.
func ParseConfiguration(s string) (Configuration, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	return ParseConfigurationFields(fields)
}

// ParseConfigurationFields parses Olevel, simd, threads and the three block sizes
func ParseConfigurationFields(fields []string) (Configuration, error) {
	if len(fields) != 6 {
		return Configuration{}, fmt.Errorf("configuration needs 6 fields, got %d", len(fields))
	}
	ints := make([]int, 4)
	for i, f := range fields[2:] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return Configuration{}, fmt.Errorf("field %d (%q) is not an integer: %w", i+3, f, err)
		}
		ints[i] = v
	}
	cfg := Configuration{
		OptLevel: OptLevel(fields[0]),
		SIMD:     SIMD(fields[1]),
		Threads:  ints[0],
		Block1:   ints[1],
		Block2:   ints[2],
		Block3:   ints[3],
	}
	if !cfg.OptLevel.Valid() {
		return Configuration{}, fmt.Errorf("invalid opt level %q", fields[0])
	}
	if !cfg.SIMD.Valid() {
		return Configuration{}, fmt.Errorf("invalid simd %q", fields[1])
	}
	return cfg, nil
}
