// Package resource describes the billable resource shapes that plans price.
package resource

import (
	"fmt"
	"strings"

	ierr "github.com/cloudfin/finance/internal/errors"
)

// Type is the kind of resource an order allocates
type Type string

const (
	TypeCompute Type = "compute"
	TypeVolume  Type = "volume"
)

func (t Type) String() string {
	return string(t)
}

// ParseType parses a resource type name, case insensitively
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeCompute:
		return TypeCompute, nil
	case TypeVolume:
		return TypeVolume, nil
	}
	return "", ierr.NewErrorf("unknown resource type %q", s).
		WithHint("Resource type must be one of compute or volume").
		WithReportableDetails(map[string]any{
			"resource_type": s,
		}).
		Mark(ierr.ErrValidation)
}

// Item is an immutable billable resource shape. Implementations are comparable
// value types so two items with the same fields are the same pricing key.
type Item interface {
	Type() Type
	String() string
}

// ComputeItem is a virtual machine shape
type ComputeItem struct {
	VCPU int `json:"vcpu"`
	RAM  int `json:"ram"`
}

func NewComputeItem(vcpu, ram int) (ComputeItem, error) {
	if vcpu < 0 || ram < 0 {
		return ComputeItem{}, ierr.NewError("compute item fields must not be negative").
			WithReportableDetails(map[string]any{"vcpu": vcpu, "ram": ram}).
			Mark(ierr.ErrValidation)
	}
	return ComputeItem{VCPU: vcpu, RAM: ram}, nil
}

func (ComputeItem) Type() Type {
	return TypeCompute
}

func (c ComputeItem) String() string {
	return fmt.Sprintf("{type:compute, vCPU:%d, ram:%d}", c.VCPU, c.RAM)
}

// VolumeItem is a block storage shape
type VolumeItem struct {
	Size int `json:"size"`
}

func NewVolumeItem(size int) (VolumeItem, error) {
	if size < 0 {
		return VolumeItem{}, ierr.NewError("volume size must not be negative").
			WithReportableDetails(map[string]any{"size": size}).
			Mark(ierr.ErrValidation)
	}
	return VolumeItem{Size: size}, nil
}

func (VolumeItem) Type() Type {
	return TypeVolume
}

func (v VolumeItem) String() string {
	return fmt.Sprintf("{type:volume, size:%d}", v.Size)
}
