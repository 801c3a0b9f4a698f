package results

import (
	"sync"
)

// Decoders turn a typed payload into a concrete value. The registry
// is open: new payload types can be registered by producers without
// modifying this package.
type PayloadDecoder func(payload []byte) (interface{}, error)

var (
	registry_mu sync.Mutex
	decoders    = make(map[string]PayloadDecoder)
)

// Should be called once from an init() function.
func RegisterPayloadType(tag string, decoder PayloadDecoder) {
	registry_mu.Lock()
	defer registry_mu.Unlock()

	decoders[tag] = decoder
}

// An opaque wrapper for payload types we do not recognize. The raw
// bytes are preserved so newer producers remain readable.
type OpaquePayload struct {
	PayloadType string
	Raw         []byte
}

// DecodePayload decodes the record's inline payload. Unknown tags
// are returned as OpaquePayload rather than dropped, to remain
// forward compatible with newer producers.
func DecodePayload(record *ResultRecord) (interface{}, error) {
	registry_mu.Lock()
	decoder, pres := decoders[record.PayloadType]
	registry_mu.Unlock()

	if !pres {
		return &OpaquePayload{
			PayloadType: record.PayloadType,
			Raw:         record.Payload,
		}, nil
	}

	return decoder(record.Payload)
}
