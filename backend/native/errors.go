// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import "github.com/cockroachdb/errors"

// Package errors for the HAL backend.
var (
	// ErrNilHALDevice is returned when constructing a Device without a HAL device or queue.
	ErrNilHALDevice = errors.New("native: HAL device is nil")

	// ErrNoHAL is returned when a device provider does not expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrForeignObject is returned when an object created by another backend
	// is passed to this one.
	ErrForeignObject = errors.New("native: object was not created by this backend")

	// ErrInvalidTextureSize is returned when surface dimensions are invalid.
	ErrInvalidTextureSize = errors.New("native: invalid texture size")
)
