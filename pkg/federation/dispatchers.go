package federation

// actorEntry holds an actor surface's registered callbacks: dispatcher,
// an optional key-pair dispatcher, and an optional authorize predicate.
type actorEntry struct {
	dispatcher        ActorDispatcher
	keyPairDispatcher KeyPairDispatcher
	authorize         AuthorizePredicate
}

// ActorCallbackSetters is a builder: a value whose
// setter methods return the same builder, chained after
// SetActorDispatcher.
type ActorCallbackSetters struct {
	entry *actorEntry
}

func (s ActorCallbackSetters) SetKeyPairDispatcher(fn KeyPairDispatcher) ActorCallbackSetters {
	s.entry.keyPairDispatcher = fn
	return s
}

func (s ActorCallbackSetters) Authorize(fn AuthorizePredicate) ActorCallbackSetters {
	s.entry.authorize = fn
	return s
}

// objectEntry holds an object class's registered callbacks, keyed by the
// class's canonical type IRI.
type objectEntry struct {
	dispatcher ObjectDispatcher
	parameters map[string]struct{}
	authorize  AuthorizePredicate
}

type ObjectCallbackSetters struct {
	entry *objectEntry
}

func (s ObjectCallbackSetters) Authorize(fn AuthorizePredicate) ObjectCallbackSetters {
	s.entry.authorize = fn
	return s
}

// collectionEntry holds a collection surface's registered callbacks
// (outbox, following, followers all share this shape).
type collectionEntry struct {
	dispatcher  CollectionDispatcher
	counter     CollectionCounter
	firstCursor CollectionCursor
	lastCursor  CollectionCursor
	authorize   AuthorizePredicate
}

type CollectionCallbackSetters struct {
	entry *collectionEntry
}

func (s CollectionCallbackSetters) SetCounter(fn CollectionCounter) CollectionCallbackSetters {
	s.entry.counter = fn
	return s
}

func (s CollectionCallbackSetters) SetFirstCursor(fn CollectionCursor) CollectionCallbackSetters {
	s.entry.firstCursor = fn
	return s
}

func (s CollectionCallbackSetters) SetLastCursor(fn CollectionCursor) CollectionCallbackSetters {
	s.entry.lastCursor = fn
	return s
}

func (s CollectionCallbackSetters) Authorize(fn AuthorizePredicate) CollectionCallbackSetters {
	s.entry.authorize = fn
	return s
}

// inboxEntry holds the mapping from activity class to listener (lookup
// order comes from the activity's type chain, not from this map), plus
// the shared error handler.
type inboxEntry struct {
	listeners     map[string]InboxListener
	errorHandler  InboxErrorHandler
	sharedEnabled bool
}

type InboxListenerSetter struct {
	entry *inboxEntry
}

// On registers fn for activityClass, refusing a second registration of
// the same class.
func (s InboxListenerSetter) On(activityClass string, fn InboxListener) InboxListenerSetter {
	if _, exists := s.entry.listeners[activityClass]; exists {
		panic(newFederationError("DUPLICATE_LISTENER", "inbox listener for %q already registered", activityClass))
	}
	s.entry.listeners[activityClass] = fn
	return s
}

// OnError replaces the inbox error handler.
func (s InboxListenerSetter) OnError(fn InboxErrorHandler) InboxListenerSetter {
	s.entry.errorHandler = fn
	return s
}
