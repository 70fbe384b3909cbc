package federation

import (
	"crypto/rsa"
	"net/http"
	"sync"
	"time"

	"github.com/morezero/federation-core/pkg/docloader"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/nodeinfo"
	"github.com/morezero/federation-core/pkg/queue"
	"github.com/morezero/federation-core/pkg/router"
	"github.com/morezero/federation-core/pkg/send"
	"github.com/morezero/federation-core/pkg/sign"
)

// DefaultBackoffSchedule is the default retry schedule.
var DefaultBackoffSchedule = []time.Duration{3 * time.Second, 15 * time.Second, time.Minute, 15 * time.Minute, time.Hour}

// ExponentialBackoff builds an n-step retry schedule growing by factor
// from base, an alternative to the literal DefaultBackoffSchedule for
// callers that would rather express growth as a formula than a list.
func ExponentialBackoff(base time.Duration, factor float64, n int) []time.Duration {
	schedule := make([]time.Duration, n)
	delay := base
	for i := 0; i < n; i++ {
		schedule[i] = delay
		delay = time.Duration(float64(delay) * factor)
	}
	return schedule
}

// KVPrefixes names the two KV key roots the registry writes under
// (the registry's kvPrefixes constructor parameter).
type KVPrefixes struct {
	ActivityIdempotence kv.Key
	RemoteDocument      kv.Key
}

// AuthenticatedLoaderFactory builds a document loader bound to a given
// signing identity, used by the context factory's getDocumentLoader and
// DocumentLoaderForKey. The outbound retry loop does not call it.
type AuthenticatedLoaderFactory func(keyID string, privateKey *rsa.PrivateKey) docloader.Loader

// Options configures a new Federation. KV is the only required field;
// every other field has a documented default.
type Options struct {
	KV                                 kv.Store
	KVPrefixes                         *KVPrefixes
	Queue                              queue.Queue
	DocumentLoader                     docloader.Loader
	AuthenticatedDocumentLoaderFactory AuthenticatedLoaderFactory
	TreatHTTPS                         bool
	OnOutboxError                      OutboxErrorHandler
	BackoffSchedule                    []time.Duration
	Signer                             sign.Signer
	HTTPClient                         *http.Client
	// NodeInfoDescriptor is the static half of the NodeInfo document; if
	// nil, nodeinfo.DefaultDescriptor() is used.
	NodeInfoDescriptor *nodeinfo.Descriptor
}

// Federation is the dispatcher registry, reverse-URL router, and
// outbound retry loop combined: the single long-lived object a host
// application builds once and drives every incoming request and
// outgoing activity through.
type Federation struct {
	router *router.Router
	kv     kv.Store
	prefixes KVPrefixes

	queue                              queue.Queue
	documentLoader                     docloader.Loader
	authenticatedDocumentLoaderFactory AuthenticatedLoaderFactory
	treatHTTPS                         bool
	onOutboxError                      OutboxErrorHandler
	backoffSchedule                    []time.Duration
	signer                             sign.Signer
	sendPipeline                       *send.Pipeline
	keyOwnerResolver                   *documentKeyOwnerResolver
	nodeInfoDescriptor                 *nodeinfo.Descriptor

	mu               sync.Mutex
	actor            *actorEntry
	objects          map[string]*objectEntry
	outbox           *collectionEntry
	following        *collectionEntry
	followers        *collectionEntry
	inbox            *inboxEntry
	inboxTemplate    string
	sharedInboxTmpl  string
	nodeInfoDispatch NodeInfoDispatcher

	queueOnce sync.Once
}

// New constructs a Federation, applying the following defaults:
// kvPrefixes = {_fedify/activityIdempotence, _fedify/remoteDocument};
// documentLoader = the default fetch loader wrapped in a KV cache under
// remoteDocument; backoffSchedule = [3s, 15s, 60s, 15m, 1h].
func New(opts Options) (*Federation, error) {
	if opts.KV == nil {
		return nil, newFederationError("MISSING_KV", "KV store is required")
	}

	prefixes := KVPrefixes{
		ActivityIdempotence: kv.DefaultActivityIdempotencePrefix,
		RemoteDocument:      kv.DefaultRemoteDocumentPrefix,
	}
	if opts.KVPrefixes != nil {
		if opts.KVPrefixes.ActivityIdempotence != nil {
			prefixes.ActivityIdempotence = opts.KVPrefixes.ActivityIdempotence
		}
		if opts.KVPrefixes.RemoteDocument != nil {
			prefixes.RemoteDocument = opts.KVPrefixes.RemoteDocument
		}
	}

	signer := opts.Signer
	if signer == nil {
		signer = sign.NewDefaultSigner()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	loader := opts.DocumentLoader
	if loader == nil {
		loader = docloader.NewCachingLoader(docloader.NewDefaultLoader(httpClient), opts.KV, prefixes.RemoteDocument)
	}

	backoff := opts.BackoffSchedule
	if backoff == nil {
		backoff = DefaultBackoffSchedule
	}

	descriptor := opts.NodeInfoDescriptor
	if descriptor == nil {
		descriptor = nodeinfo.DefaultDescriptor()
	}

	f := &Federation{
		router:                             router.New(),
		kv:                                 opts.KV,
		prefixes:                           prefixes,
		queue:                              opts.Queue,
		documentLoader:                     loader,
		authenticatedDocumentLoaderFactory: opts.AuthenticatedDocumentLoaderFactory,
		treatHTTPS:                         opts.TreatHTTPS,
		onOutboxError:                      opts.OnOutboxError,
		backoffSchedule:                    backoff,
		signer:                             signer,
		nodeInfoDescriptor:                 descriptor,
		objects:                            make(map[string]*objectEntry),
	}
	f.sendPipeline = send.NewPipeline(signer, opts.Queue, httpClient, nil)
	f.keyOwnerResolver = newDocumentKeyOwnerResolver(loader)
	return f, nil
}

// requireExact validates that a route template's variable set is
// exactly want (order-independent): a surface's template must equal its
// required variable set.
func requireExact(surface, template string, got []string, want ...string) error {
	if len(got) != len(want) {
		return newFederationError("BAD_TEMPLATE", "%s template %q must have variables %v, got %v", surface, template, want, got)
	}
	wantSet := make(map[string]bool, len(want))
	for _, w := range want {
		wantSet[w] = true
	}
	for _, g := range got {
		if !wantSet[g] {
			return newFederationError("BAD_TEMPLATE", "%s template %q must have variables %v, got %v", surface, template, want, got)
		}
	}
	return nil
}

// SetNodeInfoDispatcher registers the NodeInfo document callback. The
// template must have zero variables.
func (f *Federation) SetNodeInfoDispatcher(template string, fn NodeInfoDispatcher) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nodeInfoDispatch != nil {
		return newFederationError("DUPLICATE_DISPATCHER", "NodeInfo dispatcher already registered")
	}
	vars, err := f.router.Add(template, "nodeinfo")
	if err != nil {
		return err
	}
	if err := requireExact("nodeinfo", template, vars); err != nil {
		return err
	}
	f.nodeInfoDispatch = fn
	return nil
}

// SetActorDispatcher registers the actor surface. The template must have
// exactly {handle}.
func (f *Federation) SetActorDispatcher(template string, fn ActorDispatcher) (ActorCallbackSetters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.actor != nil {
		return ActorCallbackSetters{}, newFederationError("DUPLICATE_DISPATCHER", "actor dispatcher already registered")
	}
	vars, err := f.router.Add(template, "actor")
	if err != nil {
		return ActorCallbackSetters{}, err
	}
	if err := requireExact("actor", template, vars, "handle"); err != nil {
		return ActorCallbackSetters{}, err
	}
	entry := &actorEntry{dispatcher: fn}
	f.actor = entry
	return ActorCallbackSetters{entry: entry}, nil
}

// SetObjectDispatcher registers an object class surface, keyed by
// typeID (the class's canonical type IRI). The template must have at
// least one variable.
func (f *Federation) SetObjectDispatcher(typeID, template string, fn ObjectDispatcher) (ObjectCallbackSetters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	routeName := "object:" + typeID
	if _, exists := f.objects[typeID]; exists {
		return ObjectCallbackSetters{}, newFederationError("DUPLICATE_DISPATCHER", "object dispatcher for %q already registered", typeID)
	}
	vars, err := f.router.Add(template, routeName)
	if err != nil {
		return ObjectCallbackSetters{}, err
	}
	if len(vars) == 0 {
		return ObjectCallbackSetters{}, newFederationError("BAD_TEMPLATE", "object template %q must have at least one variable", template)
	}
	params := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		params[v] = struct{}{}
	}
	entry := &objectEntry{dispatcher: fn, parameters: params}
	f.objects[typeID] = entry
	return ObjectCallbackSetters{entry: entry}, nil
}

func (f *Federation) setCollectionDispatcher(routeName, template string, fn CollectionDispatcher, slot **collectionEntry) (CollectionCallbackSetters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if *slot != nil {
		return CollectionCallbackSetters{}, newFederationError("DUPLICATE_DISPATCHER", "%s dispatcher already registered", routeName)
	}
	vars, err := f.router.Add(template, routeName)
	if err != nil {
		return CollectionCallbackSetters{}, err
	}
	if err := requireExact(routeName, template, vars, "handle"); err != nil {
		return CollectionCallbackSetters{}, err
	}
	entry := &collectionEntry{dispatcher: fn}
	*slot = entry
	return CollectionCallbackSetters{entry: entry}, nil
}

// SetOutboxDispatcher registers the outbox collection. Template must
// have exactly {handle}.
func (f *Federation) SetOutboxDispatcher(template string, fn CollectionDispatcher) (CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher("outbox", template, fn, &f.outbox)
}

// SetFollowingDispatcher registers the following collection.
func (f *Federation) SetFollowingDispatcher(template string, fn CollectionDispatcher) (CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher("following", template, fn, &f.following)
}

// SetFollowersDispatcher registers the followers collection.
func (f *Federation) SetFollowersDispatcher(template string, fn CollectionDispatcher) (CollectionCallbackSetters, error) {
	return f.setCollectionDispatcher("followers", template, fn, &f.followers)
}

// SetInboxListeners registers the personal inbox (exactly {handle}) and,
// optionally, the shared inbox (zero variables).
func (f *Federation) SetInboxListeners(inboxTemplate string, sharedInboxTemplate string) (InboxListenerSetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inbox != nil {
		return InboxListenerSetter{}, newFederationError("DUPLICATE_DISPATCHER", "inbox listeners already registered")
	}

	vars, err := f.router.Add(inboxTemplate, "inbox")
	if err != nil {
		return InboxListenerSetter{}, err
	}
	if err := requireExact("inbox", inboxTemplate, vars, "handle"); err != nil {
		return InboxListenerSetter{}, err
	}

	entry := &inboxEntry{listeners: make(map[string]InboxListener)}

	if sharedInboxTemplate != "" {
		sharedVars, err := f.router.Add(sharedInboxTemplate, "sharedInbox")
		if err != nil {
			return InboxListenerSetter{}, err
		}
		if err := requireExact("sharedInbox", sharedInboxTemplate, sharedVars); err != nil {
			return InboxListenerSetter{}, err
		}
		entry.sharedEnabled = true
		f.sharedInboxTmpl = sharedInboxTemplate
	}

	f.inbox = entry
	f.inboxTemplate = inboxTemplate
	return InboxListenerSetter{entry: entry}, nil
}
