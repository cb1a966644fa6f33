//go:build !unix

package exec

import "os/exec"

// killGroup is a no-op; cancellation kills only the direct child.
func killGroup(*exec.Cmd) {}
