//go:build !race
// +build !race

// Copyright 2021 Edgecast Inc

package icmpping

// IsRaceEnabled reports if the race detector is enabled.
// Tests use it to widen their timing bounds.
const IsRaceEnabled = false
