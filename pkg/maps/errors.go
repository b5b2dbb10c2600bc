package maps

import "errors"

var (
	// ErrShapeMismatch indicates a map, mask or atlas whose shape disagrees
	// with the declared box.
	ErrShapeMismatch = errors.New("maps: shape mismatch")
	// ErrSingularTransform indicates an affine that cannot be inverted.
	ErrSingularTransform = errors.New("maps: singular transform")
	// ErrInsufficientSamples indicates too few maps for the estimator.
	ErrInsufficientSamples = errors.New("maps: insufficient samples")
	// ErrMissingAtlas indicates an atlas operation on a collection without one.
	ErrMissingAtlas = errors.New("maps: no atlas configured")
	// ErrMissingMask indicates a mask operation on a collection without one.
	ErrMissingMask = errors.New("maps: no mask configured")
	// ErrInvalidArgument indicates a malformed argument or conflicting flags.
	ErrInvalidArgument = errors.New("maps: invalid argument")
	// ErrAmbiguousSelection indicates a single-map conversion on a
	// collection holding several maps.
	ErrAmbiguousSelection = errors.New("maps: ambiguous map selection")
	// ErrInvariantViolation indicates an internal invariant was broken.
	ErrInvariantViolation = errors.New("maps: invariant violation")
)
