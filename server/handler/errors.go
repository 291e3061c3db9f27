// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package handler

import "errors"

var (
	errNilValidator = errors.New("validator cannot be nil")
	errNilContexts  = errors.New("context store cannot be nil")
)
