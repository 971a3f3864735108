// Package model contains domain models passed between layers.
package model

import "strings"

// Condition labels the enhancement branch applied to a frame.
type Condition string

// Scene conditions.
const (
	Clear    Condition = "Clear"
	Lowlight Condition = "Lowlight"
	Foggy    Condition = "Foggy"
	Rainy    Condition = "Rainy"
)

// ParseCondition maps a label to a Condition, case-insensitively.
// Unknown labels report false.
func ParseCondition(s string) (Condition, bool) {
	for _, c := range []Condition{Clear, Lowlight, Foggy, Rainy} {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}
