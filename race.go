// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package ishmemproxy

// RaceEnabled is true when the race detector is active. No test reads
// it: concurrent tests against the Ring, which trigger false positives
// due to cross-field memory ordering the race detector cannot follow,
// are excluded by a //go:build !race tag instead (see doc.go, "Race
// detection").
const RaceEnabled = true
