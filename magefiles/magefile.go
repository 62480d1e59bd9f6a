//go:build mage

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified.
var Default = Build

// Build compiles every package and the sample.
func Build() error {
	if err := sh.RunV("go", "build", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", "bin/restir", "examples/restir.go")
}

// Vet runs go vet on every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests with the race detector. The recording backend makes them GPU free.
func Test() error {
	mg.Deps(Vet)
	args := []string{"test", "-race", "./..."}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	return sh.RunV("go", args...)
}

// Sample renders the sample scene headless for SAMPLE_FRAMES frames (default 120) and prints
// the profiler report.
func Sample() error {
	frames := 120
	if v := os.Getenv("SAMPLE_FRAMES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SAMPLE_FRAMES: %w", err)
		}
		frames = n
	}
	return sh.RunV("go", "run", "examples/restir.go", "-headless", "-frames", strconv.Itoa(frames))
}

// Window runs the sample in a window, hot reloading shaders from engine/shaders/assets.
func Window() error {
	return sh.RunV("go", "run", "examples/restir.go", "-shaders", "engine/shaders/assets", "-settings", "restir.toml")
}
