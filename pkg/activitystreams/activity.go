// Package activitystreams holds the sliver of the ActivityStreams
// vocabulary the federation core's dispatch logic touches directly: an
// inbound activity's id, type and actor for idempotence and validation,
// and its type chain for inbox listener lookup. The full vocabulary
// hierarchy is an external collaborator's concern, not this package's.
package activitystreams

import "encoding/json"

// Activity is the minimal shape the send pipeline and inbox handlers
// read and write. RawFields preserves any properties this struct does
// not model by name, so a round trip through Marshal/Unmarshal never
// drops data the core did not need to inspect.
type Activity struct {
	ID     string      `json:"id,omitempty"`
	Type   string      `json:"type"`
	Actor  string      `json:"actor,omitempty"`
	To     []string    `json:"to,omitempty"`
	Cc     []string    `json:"cc,omitempty"`
	Object interface{} `json:"object,omitempty"`

	RawFields map[string]interface{} `json:"-"`
}

// MarshalJSON merges RawFields with the named fields, named fields
// taking precedence, so callers can carry arbitrary extra JSON-LD
// properties through the send pipeline untouched.
func (a Activity) MarshalJSON() ([]byte, error) {
	merged := map[string]interface{}{}
	for k, v := range a.RawFields {
		merged[k] = v
	}
	if a.ID != "" {
		merged["id"] = a.ID
	}
	if a.Type != "" {
		merged["type"] = a.Type
	}
	if a.Actor != "" {
		merged["actor"] = a.Actor
	}
	if len(a.To) > 0 {
		merged["to"] = a.To
	}
	if len(a.Cc) > 0 {
		merged["cc"] = a.Cc
	}
	if a.Object != nil {
		merged["object"] = a.Object
	}
	return json.Marshal(merged)
}

// UnmarshalJSON populates the named fields and stashes everything else in
// RawFields.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias Activity
	var named alias
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	*a = Activity(named)

	for _, known := range []string{"id", "type", "actor", "to", "cc", "object"} {
		delete(raw, known)
	}
	a.RawFields = raw
	return nil
}

// WithID returns a copy of a with ID set, used when the send pipeline
// mints an id for an activity that arrived without one.
func (a Activity) WithID(id string) Activity {
	clone := a
	clone.ID = id
	return clone
}
