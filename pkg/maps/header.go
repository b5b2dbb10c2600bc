package maps

import (
	"fmt"

	"activitymaps/pkg/atlas"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/models"
)

// Mask is an immutable 0/1 indicator volume. Voxels outside the mask never
// receive weight.
type Mask struct {
	box indexing.Box
	in  []bool
}

// NewMask builds a mask from Fortran-ordered 0/1 values.
func NewMask(box indexing.Box, data []float64) (*Mask, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if len(data) != box.NVoxels() {
		return nil, fmt.Errorf("%w: mask has %d voxels, box %v has %d", ErrShapeMismatch, len(data), box, box.NVoxels())
	}
	m := &Mask{box: box, in: make([]bool, len(data))}
	for p, v := range data {
		switch v {
		case 0:
		case 1:
			m.in[p] = true
		default:
			return nil, fmt.Errorf("%w: mask value %v at voxel %d is not 0 or 1", ErrInvalidArgument, v, p)
		}
	}
	return m, nil
}

// MaskFromVolume builds a mask from a dense volume.
func MaskFromVolume(v *models.Volume) (*Mask, error) {
	return NewMask(v.Box, v.Data)
}

// Box returns the mask's shape.
func (m *Mask) Box() indexing.Box { return m.box }

// Contains reports whether flat voxel p is inside the mask.
func (m *Mask) Contains(p int) bool { return m.in[p] }

// Weights returns the mask as 0/1 values.
func (m *Mask) Weights() []float64 {
	w := make([]float64, len(m.in))
	for p, in := range m.in {
		if in {
			w[p] = 1
		}
	}
	return w
}

// Header is the metadata every collection carries. It is a value: derived
// collections copy it, and the mask and atlas it points to are immutable.
type Header struct {
	Box    indexing.Box
	Affine models.Affine
	Mask   *Mask
	Atlas  *atlas.Atlas
}

// HeaderOption configures optional header fields.
type HeaderOption func(*Header)

// WithMask attaches a mask.
func WithMask(m *Mask) HeaderOption {
	return func(h *Header) { h.Mask = m }
}

// WithAtlas attaches an atlas.
func WithAtlas(a *atlas.Atlas) HeaderOption {
	return func(h *Header) { h.Atlas = a }
}

// NewHeader returns a validated header.
func NewHeader(box indexing.Box, affine models.Affine, opts ...HeaderOption) (Header, error) {
	h := Header{Box: box, Affine: affine}
	for _, opt := range opts {
		opt(&h)
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Validate checks the box and that mask and atlas share its shape.
func (h Header) Validate() error {
	if err := h.Box.Validate(); err != nil {
		return err
	}
	if h.Mask != nil && h.Mask.box != h.Box {
		return fmt.Errorf("%w: mask box %v, header box %v", ErrShapeMismatch, h.Mask.box, h.Box)
	}
	if h.Atlas != nil && h.Atlas.Box() != h.Box {
		return fmt.Errorf("%w: atlas box %v, header box %v", ErrShapeMismatch, h.Atlas.Box(), h.Box)
	}
	return nil
}

// InverseAffine returns the world-to-voxel transform.
func (h Header) InverseAffine() (models.Affine, error) {
	inv, err := h.Affine.Inverse()
	if err != nil {
		return models.Affine{}, fmt.Errorf("%w: %w", ErrSingularTransform, err)
	}
	return inv, nil
}
