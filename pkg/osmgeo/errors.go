package osmgeo

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by Run when Stop ended the pass early. The
	// progress marker is intact and a later Run resumes from it.
	ErrStopped = errors.New("osmgeo: conversion stopped")

	// ErrNoSideDir means the input is not a local file and Options.SideDir
	// is empty, so there is nowhere to persist side files.
	ErrNoSideDir = errors.New("osmgeo: side file directory required for non-local input")

	// ErrRunning is returned when Run is called while another Run is active.
	ErrRunning = errors.New("osmgeo: conversion already running")
)

// PanicError carries a panic recovered while building one entity.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("osmgeo: panic: %v", e.Value)
}
