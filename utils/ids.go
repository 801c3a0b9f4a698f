package utils

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/openfleet/huntmaster/constants"
)

func newId() string {
	buf := make([]byte, 8)
	rand.Read(buf)

	result := make([]byte, 16)
	hex.Encode(result, buf)
	return string(result)
}

func NewFlowId() string {
	return constants.FLOW_PREFIX + newId()
}

func NewHuntId() string {
	return constants.HUNT_PREFIX + newId()
}
