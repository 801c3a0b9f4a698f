package json

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
)

func TestMarshalPreservesDictKeyOrder(t *testing.T) {
	dict := ordereddict.NewDict().
		Set("zebra", 1).
		Set("apple", "two").
		Set("mango", true)

	serialized, err := Marshal(dict)
	assert.NoError(t, err)
	assert.Equal(t,
		`{"zebra":1,"apple":"two","mango":true}`,
		string(serialized))
}

func TestMarshalNestedDicts(t *testing.T) {
	dict := ordereddict.NewDict().
		Set("outer", ordereddict.NewDict().
			Set("b", 2).
			Set("a", 1))

	serialized, err := Marshal(dict)
	assert.NoError(t, err)
	assert.Equal(t, `{"outer":{"b":2,"a":1}}`, string(serialized))
}

func TestMarshalRoundTrip(t *testing.T) {
	dict := ordereddict.NewDict().
		Set("path", "/etc/passwd").
		Set("size", int64(2048))

	serialized, err := Marshal(dict)
	assert.NoError(t, err)

	loaded := ordereddict.NewDict()
	assert.NoError(t, loaded.UnmarshalJSON(serialized))

	path, _ := loaded.GetString("path")
	assert.Equal(t, "/etc/passwd", path)
}

func TestMustMarshalIndent(t *testing.T) {
	record := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "one", Count: 1}

	serialized := MustMarshalIndent(record)
	assert.Contains(t, string(serialized), "\n")
	assert.Contains(t, string(serialized), `"name": "one"`)
}
