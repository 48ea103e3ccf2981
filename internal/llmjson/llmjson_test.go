package llmjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fence = "```"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `  {"a":1}  `, want: `{"a":1}`},
		{name: "json_fence", in: fence + "json\n{\"a\":1}\n" + fence, want: `{"a":1}`},
		{name: "bare_fence", in: fence + "\n[1,2]\n" + fence, want: `[1,2]`},
		{name: "embedded_fence", in: "Here you go:\n" + fence + "json\n{\"a\":1}\n" + fence + "\nThanks", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestObject(t *testing.T) {
	obj := Object(`Sure! {"brand":"Omega","jewels":26} Let me know {"other":true}`)
	require.NotNil(t, obj)
	assert.Equal(t, "Omega", obj["brand"])
	assert.Equal(t, json.Number("26"), obj["jewels"])
	_, hasOther := obj["other"]
	assert.False(t, hasOther)

	assert.Nil(t, Object("no json here"))
	assert.Nil(t, Object(`{"broken":`))
	assert.Nil(t, Object(`[1,2,3]`))
}

func TestObject_Fenced(t *testing.T) {
	obj := Object(fence + "json\n{\"caliber\":\"3235\"}\n" + fence)
	require.NotNil(t, obj)
	assert.Equal(t, "3235", obj["caliber"])
}

func TestArray(t *testing.T) {
	arr := Array("Prices found: [12000, \"13500\", null] as of today.")
	require.Len(t, arr, 3)
	assert.Equal(t, json.Number("12000"), arr[0])
	assert.Equal(t, "13500", arr[1])
	assert.Nil(t, arr[2])

	assert.Nil(t, Array("none"))
	assert.Nil(t, Array("[1, 2"))
}
