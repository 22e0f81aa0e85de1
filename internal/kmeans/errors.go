package kmeans

import "errors"

var (
	// ErrInvalidParameter is returned when k is out of range, the
	// initialisation method is unknown, or manual centroids are malformed.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotInitialized is returned by Step and Run when no centroids are set.
	ErrNotInitialized = errors.New("centroids not initialized")
)
