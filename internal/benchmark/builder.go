package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Builder compiles one iso3dfd binary per (opt level, simd) pair and caches
// it in the bin directory. Builds are serialized since they share the
// source tree.
type Builder struct {
	sourceDir  string
	binDir     string
	makeTarget string
	cmd        Commander
	log        *slog.Logger

	mu sync.Mutex
}

// NewBuilder creates a builder from the benchmark configuration
func NewBuilder(cfg config.Benchmark, cmd Commander) *Builder {
	if cmd == nil {
		cmd = ExecCommander{}
	}
	target := cfg.MakeTarget
	if target == "" {
		target = "last"
	}
	return &Builder{
		sourceDir:  config.ExpandHome(cfg.SourceDir),
		binDir:     config.ExpandHome(cfg.BinDir),
		makeTarget: target,
		cmd:        cmd,
		log:        logger.Default,
	}
}

// WithLogger sets the logger used for build output
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	if l != nil {
		b.log = l
	}
	return b
}

// BinaryName is the cached file name for a build
func BinaryName(opt models.OptLevel, simd models.SIMD) string {
	return fmt.Sprintf("iso3dfd_dev13_cpu_%s_%s.exe", simd, opt)
}

// Ensure returns the path of the binary for opt and simd, building it first
// when it is not cached
func (b *Builder) Ensure(ctx context.Context, opt models.OptLevel, simd models.SIMD) (string, error) {
	if !opt.Valid() || !simd.Valid() {
		return "", fmt.Errorf("cannot build for opt level %q and simd %q", opt, simd)
	}
	dst := filepath.Join(b.binDir, BinaryName(opt, simd))

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	args := []string{"Olevel=-" + string(opt), "simd=" + string(simd), b.makeTarget}
	b.log.Info("building benchmark", "dir", b.sourceDir, "args", args)
	if _, err := b.cmd.Run(ctx, b.sourceDir, nil, "make", args...); err != nil {
		return "", fmt.Errorf("make %s/%s: %w", opt, simd, err)
	}

	src := filepath.Join(b.sourceDir, "bin", fmt.Sprintf("iso3dfd_dev13_cpu_%s.exe", simd))
	if err := copyExecutable(src, dst); err != nil {
		return "", fmt.Errorf("failed to cache binary: %w", err)
	}
	b.log.Info("benchmark cached", "path", dst)
	return dst, nil
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
