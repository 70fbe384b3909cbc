package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/nodeinfo"
)

const handlersLogPrefix = "federation:handlers"

func writeJSONLD(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/activity+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeNotAcceptable(w http.ResponseWriter) {
	w.Header().Set("Vary", "Accept, Signature")
	w.WriteHeader(http.StatusNotAcceptable)
	_, _ = w.Write([]byte("Not Acceptable"))
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Vary", "Accept, Signature")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("Unauthorized"))
}

// handleActor implements the actor handler.
func (f *Federation) handleActor(rc *RequestContext, handle string) {
	if !acceptsActivityStreams(rc.Request.Header.Get("Accept")) {
		rc.respondNotAcceptable()
		return
	}

	f.mu.Lock()
	entry := f.actor
	f.mu.Unlock()
	if entry == nil {
		http.NotFound(rc.Writer, rc.Request)
		return
	}

	if entry.authorize != nil {
		ok, err := f.checkAuthorize(rc, entry.authorize, handle)
		if err != nil {
			f.internalError(rc, err)
			return
		}
		if !ok {
			rc.respondUnauthorized()
			return
		}
	}

	guarded := rc.withRecursionGuard("getActor")
	result, err := entry.dispatcher(guarded, handle)
	if err != nil {
		f.internalError(rc, err)
		return
	}
	if !result.Found {
		http.NotFound(rc.Writer, rc.Request)
		return
	}
	writeJSONLD(rc.Writer, http.StatusOK, result.Value)
}

// handleObject implements the object handler.
func (f *Federation) handleObject(rc *RequestContext, typeID string, values map[string]string) {
	if !acceptsActivityStreams(rc.Request.Header.Get("Accept")) {
		rc.respondNotAcceptable()
		return
	}

	f.mu.Lock()
	entry := f.objects[typeID]
	f.mu.Unlock()
	if entry == nil {
		http.NotFound(rc.Writer, rc.Request)
		return
	}
	for param := range entry.parameters {
		if _, ok := values[param]; !ok {
			f.internalError(rc, newFederationError("MISSING_PARAMETER", "object route missing required parameter %q", param))
			return
		}
	}

	if entry.authorize != nil {
		ok, err := f.checkAuthorize(rc, entry.authorize, values)
		if err != nil {
			f.internalError(rc, err)
			return
		}
		if !ok {
			rc.respondUnauthorized()
			return
		}
	}

	guarded := rc.withRecursionGuard("getObject")
	result, err := entry.dispatcher(guarded, values)
	if err != nil {
		f.internalError(rc, err)
		return
	}
	if !result.Found {
		http.NotFound(rc.Writer, rc.Request)
		return
	}
	writeJSONLD(rc.Writer, http.StatusOK, result.Value)
}

// collectionPage is the OrderedCollectionPage shape handleCollection
// returns when a cursor query parameter is present.
type collectionPage struct {
	Type  string      `json:"type"`
	Items interface{} `json:"orderedItems"`
	Next  string      `json:"next,omitempty"`
}

// collectionIndex is the OrderedCollection index document shape.
type collectionIndex struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	TotalItems *int   `json:"totalItems,omitempty"`
	First      string `json:"first,omitempty"`
	Last       string `json:"last,omitempty"`
}

// handleCollection implements the collection handler, shared
// by outbox, following, and followers.
func (f *Federation) handleCollection(rc *RequestContext, entry *collectionEntry, handle, collectionURI string) {
	if !acceptsActivityStreams(rc.Request.Header.Get("Accept")) {
		rc.respondNotAcceptable()
		return
	}
	if entry == nil {
		http.NotFound(rc.Writer, rc.Request)
		return
	}

	if entry.authorize != nil {
		ok, err := f.checkAuthorize(rc, entry.authorize, handle)
		if err != nil {
			f.internalError(rc, err)
			return
		}
		if !ok {
			rc.respondUnauthorized()
			return
		}
	}

	cursor := rc.URL.Query().Get("cursor")
	if cursor == "" && !rc.URL.Query().Has("cursor") {
		index := collectionIndex{Type: "OrderedCollection", ID: collectionURI}
		if entry.counter != nil {
			if total, ok, err := entry.counter(rc.Request.Context(), handle); err == nil && ok {
				index.TotalItems = &total
			}
		}
		if entry.firstCursor != nil {
			if c, ok, err := entry.firstCursor(rc.Request.Context(), handle); err == nil && ok {
				index.First = collectionURI + "?cursor=" + c
			}
		}
		if entry.lastCursor != nil {
			if c, ok, err := entry.lastCursor(rc.Request.Context(), handle); err == nil && ok {
				index.Last = collectionURI + "?cursor=" + c
			}
		}
		writeJSONLD(rc.Writer, http.StatusOK, index)
		return
	}

	items, nextCursor, err := entry.dispatcher(rc, handle, cursor)
	if err != nil {
		f.internalError(rc, err)
		return
	}
	page := collectionPage{Type: "OrderedCollectionPage", Items: items}
	if nextCursor != "" {
		page.Next = collectionURI + "?cursor=" + nextCursor
	}
	writeJSONLD(rc.Writer, http.StatusOK, page)
}

// handleInbox implements the inbox handler, shared by the
// personal and shared inbox routes (handle is empty for shared).
func (f *Federation) handleInbox(rc *RequestContext, handle string) {
	w := rc.Writer

	contentType := rc.Request.Header.Get("Content-Type")
	if contentType != "application/activity+json" && contentType != "application/ld+json" {
		inboxActivitiesTotal.WithLabelValues("malformed").Inc()
		http.Error(w, "unsupported content type", http.StatusBadRequest)
		return
	}

	ownerURI := rc.GetSignedKeyOwner(rc.Request.Context(), f.keyOwnerResolver)
	if ownerURI == "" {
		inboxActivitiesTotal.WithLabelValues("unauthorized").Inc()
		rc.respondUnauthorized()
		return
	}

	var activity activitystreams.Activity
	if err := json.NewDecoder(rc.Request.Body).Decode(&activity); err != nil {
		inboxActivitiesTotal.WithLabelValues("malformed").Inc()
		f.invokeInboxError(rc.Request.Context(), nil, fmt.Errorf("%s - decode inbox body: %w", handlersLogPrefix, err))
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}

	idempotenceKey := append(append(kv.Key{}, f.prefixes.ActivityIdempotence...), activity.ID)
	claimed, err := f.kv.SetIfAbsent(rc.Request.Context(), idempotenceKey, []byte("1"), kv.SetOptions{TTL: kv.ActivityIdempotenceTTL})
	if err != nil {
		f.internalError(rc, err)
		return
	}
	if !claimed {
		inboxActivitiesTotal.WithLabelValues("duplicate").Inc()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	f.mu.Lock()
	inbox := f.inbox
	f.mu.Unlock()
	if inbox == nil {
		inboxActivitiesTotal.WithLabelValues("no_listener").Inc()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if handle != "" {
		loaderCtx, err := rc.DocumentLoaderFor(rc.Request.Context(), handle)
		if err == nil {
			rc.documentLoader = loaderCtx
		}
	}

	var listener InboxListener
	for _, class := range activitystreams.TypeChain(activity.Type) {
		if l, ok := inbox.listeners[class]; ok {
			listener = l
			break
		}
	}
	if listener == nil {
		inboxActivitiesTotal.WithLabelValues("no_listener").Inc()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := listener(rc, handle, activity); err != nil {
		inboxActivitiesTotal.WithLabelValues("error").Inc()
		f.invokeInboxError(rc.Request.Context(), &activity, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	inboxActivitiesTotal.WithLabelValues("dispatched").Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (f *Federation) invokeInboxError(ctx context.Context, activity *activitystreams.Activity, err error) {
	f.mu.Lock()
	inbox := f.inbox
	f.mu.Unlock()
	if inbox == nil || inbox.errorHandler == nil {
		slog.Error(fmt.Sprintf("%s - inbox listener failed: %v", handlersLogPrefix, err))
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error(fmt.Sprintf("%s - inbox error handler panicked: %v", handlersLogPrefix, r))
			}
		}()
		inbox.errorHandler(ctx, activity, err)
	}()
}

// handleNodeInfo implements the NodeInfo handler.
func (f *Federation) handleNodeInfo(rc *RequestContext) {
	f.mu.Lock()
	dispatch := f.nodeInfoDispatch
	descriptor := f.nodeInfoDescriptor
	f.mu.Unlock()

	var usage nodeinfo.Usage
	if dispatch != nil {
		var err error
		usage, err = dispatch(rc.Request.Context())
		if err != nil {
			f.internalError(rc, err)
			return
		}
	}
	doc := descriptor.BuildDocument(usage)
	w := rc.Writer
	w.Header().Set("Content-Type", "application/json; profile=\"http://nodeinfo.diaspora.software/ns/schema/2.1#\"")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(doc)
}

// checkAuthorize resolves the request's signed key once and hands it to
// predicate, matching AuthorizePredicate's signature.
func (f *Federation) checkAuthorize(rc *RequestContext, predicate AuthorizePredicate, handleOrValues interface{}) (bool, error) {
	key := rc.GetSignedKey(rc.Request.Context(), f.keyOwnerResolver)
	owner := rc.GetSignedKeyOwner(rc.Request.Context(), f.keyOwnerResolver)
	return predicate(rc, handleOrValues, key, owner)
}

func (f *Federation) internalError(rc *RequestContext, err error) {
	slog.Error(fmt.Sprintf("%s - handler error: %v", handlersLogPrefix, err))
	http.Error(rc.Writer, "internal error", http.StatusInternalServerError)
}
