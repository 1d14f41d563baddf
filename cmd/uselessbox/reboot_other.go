//go:build !linux

package main

import "errors"

func reboot() error {
	return errors.New("reboot only supported on linux")
}
