package nodeinfo

// Usage is a NodeInfo document's per-request usage counters, supplied by
// the registered NodeInfo dispatcher.
type Usage struct {
	Users struct {
		Total          int `json:"total"`
		ActiveMonth    int `json:"activeMonth"`
		ActiveHalfyear int `json:"activeHalfyear"`
	} `json:"users"`
	LocalPosts    int `json:"localPosts"`
	LocalComments int `json:"localComments"`
}

// Document is the NodeInfo 2.1 response shape
// (http://nodeinfo.diaspora.software/ns/schema/2.1).
type Document struct {
	Version           string            `json:"version"`
	Software          Software          `json:"software"`
	Protocols         []string          `json:"protocols"`
	Services          Services          `json:"services"`
	OpenRegistrations bool              `json:"openRegistrations"`
	Usage             Usage             `json:"usage"`
	Metadata          map[string]string `json:"metadata"`
}

// Software describes the running server implementation.
type Software struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

// Services lists inbound/outbound federation protocols beyond the ones
// listed in Protocols; the core does not populate these today, but the
// field is part of the schema and must round-trip.
type Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// BuildDocument assembles a NodeInfo document from the static descriptor
// and a request-time usage snapshot: this function is the one place that
// shape gets assembled. The result is not validated against the NodeInfo
// schema; its shape is only what the Document struct fixes.
func (d *Descriptor) BuildDocument(usage Usage) Document {
	return Document{
		Version: "2.1",
		Software: Software{
			Name:       d.SoftwareName,
			Version:    d.SoftwareVersion,
			Repository: d.SoftwareRepo,
		},
		Protocols:         d.Protocols,
		Services:          Services{Inbound: []string{}, Outbound: []string{}},
		OpenRegistrations: d.OpenRegistrations,
		Usage:             usage,
		Metadata:          map[string]string{},
	}
}
