package model

import (
	"encoding/json"
	"errors"
)

// KeyEnvelope is the stored group key envelope in its current format: the
// sealed group key plus the public key of the member that sealed it.
// Older rows may hold only the sealed key; see e2e.ParseEnvelope.
type KeyEnvelope struct {
	Key      string `json:"key"`
	SharedBy string `json:"sharedBy"`
}

// Encode renders the envelope as it is stored on the server.
func (e KeyEnvelope) Encode() (string, error) {
	if e.Key == "" || e.SharedBy == "" {
		return "", errors.New("envelope: key and sharedBy are required")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
