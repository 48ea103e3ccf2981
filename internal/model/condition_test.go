package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Condition
		wantOK bool
	}{
		{"new", ConditionNew, true},
		{"neu", ConditionNew, true},
		{" Unworn ", ConditionUnworn, true},
		{"ungetragen", ConditionUnworn, true},
		{"worn", ConditionWorn, true},
		{"getragen", ConditionWorn, true},
		{"heavily-worn", ConditionHeavilyWorn, true},
		{"stark_getragen", ConditionHeavilyWorn, true},
		{"mint", Condition("mint"), false},
		{"", Condition(""), false},
	}

	for _, tt := range tests {
		got, ok := ParseCondition(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestCondition_Valid(t *testing.T) {
	t.Parallel()
	for _, c := range AllConditions() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Condition("neu").Valid())
	assert.False(t, Condition("").Valid())
}
