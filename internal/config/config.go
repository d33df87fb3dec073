// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config reads the environment variables that parameterize an
// ishmemproxy runtime, mirroring original_source/src/env_defs.h's
// OPENSHMEM_ENV table. It is deliberately built on os/strconv rather
// than a third-party flags/config library: none of the libraries this
// pack's examples depend on (atomix, iox, spin, cloudwego/gopkg) touch
// configuration parsing, and the surface here is a handful of
// independent scalar env vars with no need for file-based layering,
// so pulling in a config framework would add a dependency with no
// corresponding consumer elsewhere in the module.
package config

import (
	"os"
	"strconv"
)

// Config is the resolved set of tunables for one library instance.
type Config struct {
	// SymmetricSize is the per-PE symmetric heap size in bytes.
	SymmetricSize uint64
	// EnableGPUIPC turns on peer heap aliasing between local PEs.
	EnableGPUIPC bool
	// EnableGPUIPCPidFD selects pidfd_getfd-based handle exchange for
	// GPU IPC instead of the default mechanism.
	EnableGPUIPCPidFD bool
	// EnableAccessibleHostHeap maps the symmetric heap so host-side
	// code can address it directly, without a proxied copy.
	EnableAccessibleHostHeap bool
	// NBICount is the outstanding-request budget for non-blocking ops.
	NBICount int
	// MWaitBurst bounds how many consecutive idle ring polls the host
	// proxy makes before it starts backing off.
	MWaitBurst int
	// TeamsMax bounds how many teams (PE subsets) may exist at once.
	TeamsMax int
	// Debug turns on verbose internal diagnostics.
	Debug bool
	// EnableVerbosePrint is read from ENABLE_VERBOSE_PRINT; nothing in
	// this module consults it, and Device.Print always only stores its
	// message in the MessagePool.
	EnableVerbosePrint bool
	// Runtime selects the bootstrap/world-building runtime a Backend
	// implementation should use (e.g. "pmi", "mpi", "single"); this is
	// not part of the distilled spec but mirrors
	// original_source/src/internal.h's ISHMEM_RUNTIME selector, which
	// OpenSHMEM-family implementations expose so a single binary can
	// be launched under different job managers.
	Runtime string
}

// Default returns the configuration the original implementation falls
// back to when no environment variable overrides it.
func Default() Config {
	return Config{
		SymmetricSize:    1 << 30,
		NBICount:         64,
		MWaitBurst:       100,
		TeamsMax:         32,
		Runtime:          "single",
	}
}

// FromEnv resolves Config from the process environment, starting from
// Default and overriding each field whose variable is set.
func FromEnv() Config {
	c := Default()

	if v, ok := lookupUint(envSymmetricSize); ok {
		c.SymmetricSize = v
	}
	if v, ok := lookupBool(envEnableGPUIPC); ok {
		c.EnableGPUIPC = v
	}
	if v, ok := lookupBool(envEnableGPUIPCPidFD); ok {
		c.EnableGPUIPCPidFD = v
	}
	if v, ok := lookupBool(envEnableAccessibleHostHeap); ok {
		c.EnableAccessibleHostHeap = v
	}
	if v, ok := lookupInt(envNBICount); ok {
		c.NBICount = v
	}
	if v, ok := lookupInt(envMWaitBurst); ok {
		c.MWaitBurst = v
	}
	if v, ok := lookupInt(envTeamsMax); ok {
		c.TeamsMax = v
	}
	if v, ok := lookupBool(envDebug); ok {
		c.Debug = v
	}
	if v, ok := lookupBool(envEnableVerbosePrint); ok {
		c.EnableVerbosePrint = v
	}
	if v, ok := os.LookupEnv(envRuntime); ok && v != "" {
		c.Runtime = v
	}
	return c
}

const (
	envSymmetricSize            = "SYMMETRIC_SIZE"
	envEnableGPUIPC              = "ENABLE_GPU_IPC"
	envEnableGPUIPCPidFD         = "ENABLE_GPU_IPC_PIDFD"
	envEnableAccessibleHostHeap  = "ENABLE_ACCESSIBLE_HOST_HEAP"
	envNBICount                  = "NBI_COUNT"
	envMWaitBurst                = "MWAIT_BURST"
	envTeamsMax                  = "TEAMS_MAX"
	envDebug                     = "DEBUG"
	envEnableVerbosePrint        = "ENABLE_VERBOSE_PRINT"
	// envRuntime is the supplemented ISHMEM_RUNTIME selector; see
	// Config.Runtime.
	envRuntime = "ISHMEM_RUNTIME"
)

func lookupUint(name string) (uint64, bool) {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupInt(name string) (int, bool) {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupBool(name string) (bool, bool) {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}
