package model

import "strings"

// Condition describes the physical state of a watch.
type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionUnworn      Condition = "unworn"
	ConditionWorn        Condition = "worn"
	ConditionHeavilyWorn Condition = "heavily-worn"
)

// conditionAliases maps accepted spellings, including the German labels
// stored by older records, onto the canonical set.
var conditionAliases = map[string]Condition{
	"new":            ConditionNew,
	"neu":            ConditionNew,
	"unworn":         ConditionUnworn,
	"ungetragen":     ConditionUnworn,
	"worn":           ConditionWorn,
	"getragen":       ConditionWorn,
	"heavily-worn":   ConditionHeavilyWorn,
	"heavily_worn":   ConditionHeavilyWorn,
	"stark_getragen": ConditionHeavilyWorn,
	"stark-getragen": ConditionHeavilyWorn,
}

// ParseCondition maps s onto a canonical Condition. Unrecognized values are
// returned verbatim with ok=false; they are valued with the default factor.
func ParseCondition(s string) (Condition, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := conditionAliases[key]; ok {
		return c, true
	}
	return Condition(s), false
}

// Valid reports whether c is one of the canonical conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUnworn, ConditionWorn, ConditionHeavilyWorn:
		return true
	}
	return false
}

// AllConditions returns the canonical conditions from best to worst.
func AllConditions() []Condition {
	return []Condition{ConditionNew, ConditionUnworn, ConditionWorn, ConditionHeavilyWorn}
}
