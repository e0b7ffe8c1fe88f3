//go:build linux

package cmd

import "golang.org/x/sys/unix"

// cbreak disables line buffering and echo but keeps output processing and
// signal keys, so log lines render normally and Ctrl-C still interrupts.
func cbreak(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Lflag &^= unix.ICANON | unix.ECHO
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
