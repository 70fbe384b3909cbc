package federation

import "strings"

// activityStreamsMediaTypes are the Accept values this registry treats as
// ActivityStreams-compatible.
var activityStreamsMediaTypes = []string{
	"application/activity+json",
	"application/ld+json",
	"application/json",
}

// acceptsActivityStreams reports whether accept includes at least one
// ActivityStreams-compatible media type, or is empty/"*/*" (a client
// that sent no preference gets JSON-LD).
func acceptsActivityStreams(accept string) bool {
	if accept == "" || strings.Contains(accept, "*/*") {
		return true
	}
	for _, want := range activityStreamsMediaTypes {
		if strings.Contains(accept, want) {
			return true
		}
	}
	return false
}
