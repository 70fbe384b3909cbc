package federation

import (
	"encoding/json"
	"net/http"

	"github.com/morezero/federation-core/pkg/nodeinfo"
)

// handleWebFinger implements the WebFinger handler at the
// fixed path GET /.well-known/webfinger.
func (f *Federation) handleWebFinger(rc *RequestContext) {
	resource := rc.URL.Query().Get("resource")
	if resource == "" {
		http.Error(rc.Writer, "missing resource parameter", http.StatusBadRequest)
		return
	}

	handle, ok := nodeinfo.ParseWebFingerResource(resource, rc.Request.Host)
	if !ok {
		http.Error(rc.Writer, "malformed resource parameter", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	entry := f.actor
	f.mu.Unlock()
	if entry == nil {
		http.NotFound(rc.Writer, rc.Request)
		return
	}

	result, err := entry.dispatcher(rc, handle)
	if err != nil {
		f.internalError(rc, err)
		return
	}
	if !result.Found {
		http.NotFound(rc.Writer, rc.Request)
		return
	}

	actorURI, err := rc.ActorURI(handle)
	if err != nil {
		f.internalError(rc, err)
		return
	}

	jrd := nodeinfo.BuildActorJRD(handle, rc.Request.Host, actorURI, "")
	writeJRD(rc.Writer, jrd)
}

// handleNodeInfoDiscovery implements the fixed
// GET /.well-known/nodeinfo path: a JRD pointing at the registered
// NodeInfo document.
func (f *Federation) handleNodeInfoDiscovery(rc *RequestContext) {
	nodeInfoURI, err := rc.NodeInfoURI()
	if err != nil {
		f.internalError(rc, err)
		return
	}
	writeJRD(rc.Writer, nodeinfo.BuildNodeInfoDiscoveryJRD(nodeInfoURI))
}

func writeJRD(w http.ResponseWriter, jrd nodeinfo.JRD) {
	w.Header().Set("Content-Type", "application/jrd+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jrd)
}
