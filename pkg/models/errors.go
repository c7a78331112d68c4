package models

import "errors"

var (
	// ErrData marks empty or malformed training input. Retraining stops and
	// no partial state is installed.
	ErrData = errors.New("invalid training data")

	// ErrNotFound marks an unknown user or item id at query time.
	ErrNotFound = errors.New("not found")

	// ErrNoModel is returned when a query arrives before the first successful fit.
	ErrNoModel = errors.New("no fitted model installed")
)
