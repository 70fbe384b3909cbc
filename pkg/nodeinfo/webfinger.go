package nodeinfo

import (
	"fmt"
	"strings"
)

// JRD is a JSON Resource Descriptor (RFC 7033 §4.4), the WebFinger and
// `/.well-known/nodeinfo` response format.
type JRD struct {
	Subject string    `json:"subject"`
	Aliases []string  `json:"aliases,omitempty"`
	Links   []JRDLink `json:"links"`
}

// JRDLink is a single JRD link entry.
type JRDLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

// BuildActorJRD builds the WebFinger response for an actor: subject
// `acct:<handle>@<host>`, a `self` link to the actor URI, and an optional
// `http://webfinger.net/rel/profile-page` alias link, matching the
// WebFinger handler description.
func BuildActorJRD(handle, host, actorURI, profilePageURI string) JRD {
	jrd := JRD{
		Subject: fmt.Sprintf("acct:%s@%s", handle, host),
		Links: []JRDLink{
			{Rel: "self", Type: "application/activity+json", Href: actorURI},
		},
	}
	if profilePageURI != "" {
		jrd.Links = append(jrd.Links, JRDLink{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: profilePageURI})
	}
	return jrd
}

// BuildNodeInfoDiscoveryJRD builds the `/.well-known/nodeinfo` document,
// which points at the registered NodeInfo document's absolute URL.
func BuildNodeInfoDiscoveryJRD(nodeInfoURI string) JRD {
	return JRD{
		Links: []JRDLink{
			{Rel: "http://nodeinfo.diaspora.software/ns/schema/2.1", Href: nodeInfoURI},
		},
	}
}

// ParseWebFingerResource extracts a handle from a WebFinger `resource`
// query parameter, accepting both `acct:handle@host` and
// `https://host/users/handle` forms. It reports
// whether resource was well-formed.
func ParseWebFingerResource(resource, expectedHost string) (handle string, ok bool) {
	if strings.HasPrefix(resource, "acct:") {
		acct := strings.TrimPrefix(resource, "acct:")
		parts := strings.SplitN(acct, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] != expectedHost {
			return "", false
		}
		return parts[0], true
	}

	prefix := fmt.Sprintf("https://%s/users/", expectedHost)
	if strings.HasPrefix(resource, prefix) {
		handle := strings.TrimPrefix(resource, prefix)
		handle = strings.TrimSuffix(handle, "/")
		if handle == "" || strings.Contains(handle, "/") {
			return "", false
		}
		return handle, true
	}

	return "", false
}
