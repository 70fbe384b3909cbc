// Package send implements the outbound activity delivery pipeline:
// mint an id if one is missing, validate the actor, resolve target
// inboxes, sign one POST per inbox, and dispatch either immediately or
// through a queue. The send pipeline enumerates these seven steps; this
// package is their concrete implementation.
package send

import (
	"crypto/rsa"
	"encoding/json"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/morezero/federation-core/pkg/activitystreams"
)

// SendError is a structured send-pipeline failure: a stable code plus a
// human-readable message and optional structured details.
type SendError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *SendError) Error() string {
	return e.Code + ": " + e.Message
}

// NewSendError creates a SendError.
func NewSendError(code, message string) *SendError {
	return &SendError{Code: code, Message: message}
}

// Sender is the key material identifying who is sending: an actor's main
// key id and the private key that goes with it.
type Sender struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// OutboxMessage is the queue's wire shape for a single pending delivery,
// matching the OutboxMessage JSON shape exactly so it
// round-trips through JSON without loss.
type OutboxMessage struct {
	Type       string                   `json:"type"`
	KeyID      string                   `json:"keyId"`
	PrivateKey jwk.Key                  `json:"privateKey"`
	Activity   activitystreams.Activity `json:"activity"`
	Inbox      string                   `json:"inbox"`
	Trial      int                      `json:"trial"`
}

// UnmarshalJSON decodes privateKey with jwk.ParseKey, since encoding/json
// cannot fill the jwk.Key interface field on its own.
func (m *OutboxMessage) UnmarshalJSON(data []byte) error {
	type alias OutboxMessage
	aux := struct {
		*alias
		PrivateKey json.RawMessage `json:"privateKey"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	key, err := jwk.ParseKey(aux.PrivateKey)
	m.PrivateKey = key
	return err
}
