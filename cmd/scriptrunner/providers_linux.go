//go:build linux

package main

import (
	// Firecracker needs KVM and only builds on Linux.
	_ "github.com/MaksGolikov/ScriptRunner/internal/sandbox/firecracker"
)
