package model

import (
	"fmt"
)

// ConstraintKind discriminates the optimization constraint variants.
type ConstraintKind string

const (
	ConstraintMaxWeight     ConstraintKind = "MAX_WEIGHT"
	ConstraintMinHours      ConstraintKind = "MIN_HOURS"
	ConstraintEquipmentType ConstraintKind = "EQUIPMENT_TYPE"
	ConstraintRegion        ConstraintKind = "REGION"
	ConstraintMaxEmptyMiles ConstraintKind = "MAX_EMPTY_MILES"
)

// Constraint is a tagged variant. Exactly the field matching Kind is
// meaningful; the rest stay zero. Weight scales the constraint's influence
// when it is applied as a soft preference rather than a hard cut.
type Constraint struct {
	Kind          ConstraintKind `json:"kind"`
	MaxWeightLbs  float64        `json:"max_weight_lbs,omitempty"`
	MinHours      float64        `json:"min_hours,omitempty"`
	Equipment     EquipmentType  `json:"equipment,omitempty"`
	Region        string         `json:"region,omitempty"`
	MaxEmptyMiles float64        `json:"max_empty_miles,omitempty"`
	Weight        float64        `json:"weight,omitempty"`
	Hard          bool           `json:"hard"`
}

// Validate checks that the variant carries a usable value for its kind.
func (c Constraint) Validate() error {
	switch c.Kind {
	case ConstraintMaxWeight:
		if c.MaxWeightLbs <= 0 {
			return fmt.Errorf("MAX_WEIGHT constraint requires max_weight_lbs > 0")
		}
	case ConstraintMinHours:
		if c.MinHours <= 0 {
			return fmt.Errorf("MIN_HOURS constraint requires min_hours > 0")
		}
	case ConstraintEquipmentType:
		if c.Equipment == "" {
			return fmt.Errorf("EQUIPMENT_TYPE constraint requires equipment")
		}
	case ConstraintRegion:
		if c.Region == "" {
			return fmt.Errorf("REGION constraint requires region")
		}
	case ConstraintMaxEmptyMiles:
		if c.MaxEmptyMiles <= 0 {
			return fmt.Errorf("MAX_EMPTY_MILES constraint requires max_empty_miles > 0")
		}
	default:
		return fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
	return nil
}
