// Wrap json library to control encoding.
//
// Row records are *ordereddict.Dict so key order survives the round
// trip; the encoder options install a callback for them.
package json

import (
	"bytes"
	gojson "encoding/json"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

func encOpts() *json.EncOpts {
	return json.NewEncOpts().
		WithCallback(ordereddict.NewDict(), marshalDict)
}

// Serialize a dict preserving its key order. Values that fail to
// encode become null rather than poisoning the whole record.
func marshalDict(v interface{}, opts *json.EncOpts) ([]byte, error) {
	dict, ok := v.(*ordereddict.Dict)
	if !ok {
		return nil, json.EncoderCallbackSkip
	}

	buf := &bytes.Buffer{}
	buf.WriteByte('{')

	for idx, k := range dict.Keys() {
		if idx > 0 {
			buf.WriteByte(',')
		}

		key, err := json.MarshalWithOptions(k, opts)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, pres := dict.Get(k)
		if !pres {
			buf.WriteString("null")
			continue
		}

		serialized, err := json.MarshalWithOptions(value, opts)
		if err != nil {
			buf.WriteString("null")
			continue
		}
		buf.Write(serialized)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func Marshal(v interface{}) ([]byte, error) {
	return json.MarshalWithOptions(v, encOpts())
}

func MustMarshalIndent(v interface{}) []byte {
	serialized, err := Marshal(v)
	if err != nil {
		panic(err)
	}

	indented := &bytes.Buffer{}
	err = gojson.Indent(indented, serialized, "", " ")
	if err != nil {
		panic(err)
	}
	return indented.Bytes()
}

func Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}
