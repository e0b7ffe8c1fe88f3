//go:build !linux

package cmd

import "golang.org/x/term"

func cbreak(fd int) error {
	_, err := term.MakeRaw(fd)
	return err
}
