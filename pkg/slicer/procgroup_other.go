//go:build !unix

package slicer

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
