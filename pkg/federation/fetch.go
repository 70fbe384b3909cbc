package federation

import (
	"net/http"
	"strings"
)

// Fetch is the registry's single HTTP entry point: resolve a
// Context/RequestContext for req, route by path, and dispatch to the
// matching per-surface handler. Unknown routes and content
// negotiation/authorization failures fall through to opts's onX
// callbacks, defaulting to plain-text 404/406/401 responses.
func (f *Federation) Fetch(w http.ResponseWriter, req *http.Request, opts FetchOptions) {
	origin := f.requestOrigin(req)
	ctx := newContext(f, origin, opts.ContextData)
	rc := newRequestContext(ctx, w, req)
	rc.onNotAcceptable = opts.OnNotAcceptable
	rc.onUnauthorized = opts.OnUnauthorized

	path := req.URL.Path

	switch path {
	case "/.well-known/webfinger":
		f.handleWebFinger(rc)
		return
	case "/.well-known/nodeinfo":
		f.handleNodeInfoDiscovery(rc)
		return
	}

	match, ok := f.router.Route(path)
	if !ok {
		f.onNotFound(rc, opts)
		return
	}

	switch {
	case match.Name == "actor":
		f.handleActor(rc, match.Values["handle"])
	case strings.HasPrefix(match.Name, "object:"):
		f.handleObject(rc, strings.TrimPrefix(match.Name, "object:"), match.Values)
	case match.Name == "outbox":
		f.dispatchCollection(rc, f.outbox, match.Values["handle"])
	case match.Name == "following":
		f.dispatchCollection(rc, f.following, match.Values["handle"])
	case match.Name == "followers":
		f.dispatchCollection(rc, f.followers, match.Values["handle"])
	case match.Name == "inbox":
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.handleInbox(rc, match.Values["handle"])
	case match.Name == "sharedInbox":
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.handleInbox(rc, "")
	case match.Name == "nodeinfo":
		f.handleNodeInfo(rc)
	default:
		f.onNotFound(rc, opts)
	}
}

func (f *Federation) dispatchCollection(rc *RequestContext, entry *collectionEntry, handle string) {
	uri, err := rc.buildURL(collectionRouteNameFor(entry, f), map[string]string{"handle": handle})
	if err != nil {
		f.internalError(rc, err)
		return
	}
	f.handleCollection(rc, entry, handle, uri)
}

// collectionRouteNameFor identifies which of the three collection route
// names entry was registered under, so dispatchCollection can rebuild
// its own canonical URI for the index document's id.
func collectionRouteNameFor(entry *collectionEntry, f *Federation) string {
	switch entry {
	case f.outbox:
		return "outbox"
	case f.following:
		return "following"
	case f.followers:
		return "followers"
	default:
		return "outbox"
	}
}

func (f *Federation) requestOrigin(req *http.Request) string {
	scheme := "https"
	if req.TLS == nil && !f.treatHTTPS {
		scheme = "http"
	}
	return scheme + "://" + req.Host
}

func (f *Federation) onNotFound(rc *RequestContext, opts FetchOptions) {
	if opts.OnNotFound != nil {
		opts.OnNotFound(rc.Writer, rc.Request)
		return
	}
	http.NotFound(rc.Writer, rc.Request)
}
