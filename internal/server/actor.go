package server

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/morezero/federation-core/internal/config"
	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/federation"
	"github.com/morezero/federation-core/pkg/send"
	"github.com/morezero/federation-core/pkg/webkey"
)

// remoteRecipient fetches the follower's actor document and reads its
// inbox and endpoints.sharedInbox properties, the minimal resolution
// SendActivity needs since Recipient carries already-resolved inbox
// URIs, not an actor URI.
func remoteRecipient(ctx *federation.RequestContext, actorURI string) (send.Recipient, error) {
	doc, err := ctx.DocumentLoader().Load(ctx.Request.Context(), actorURI)
	if err != nil {
		return send.Recipient{}, fmt.Errorf("load follower actor document: %w", err)
	}
	fields, ok := doc.Document.(map[string]interface{})
	if !ok {
		return send.Recipient{}, fmt.Errorf("follower actor document at %s is not an object", actorURI)
	}
	inbox, _ := fields["inbox"].(string)
	if inbox == "" {
		return send.Recipient{}, fmt.Errorf("follower actor document at %s has no inbox", actorURI)
	}
	var sharedInbox string
	if endpoints, ok := fields["endpoints"].(map[string]interface{}); ok {
		sharedInbox, _ = endpoints["sharedInbox"].(string)
	}
	return send.Recipient{InboxID: inbox, SharedInbox: sharedInbox}, nil
}

const (
	actorTemplate     = "/users/{handle}"
	outboxTemplate    = "/users/{handle}/outbox"
	followingTemplate = "/users/{handle}/following"
	followersTemplate = "/users/{handle}/followers"
	inboxTemplate     = "/users/{handle}/inbox"
	sharedInboxTmpl   = "/inbox"
)

// registerDemoActor wires a single actor whose identity comes entirely
// from cfg: no database row backs it, satisfying the no-persistence
// constraint while still giving a fresh deployment something to
// WebFinger, sign requests as, and receive activities on.
func registerDemoActor(fed *federation.Federation, cfg *config.Config) error {
	key, err := webkey.ParseKey([]byte(cfg.ActorPrivateKeyJWK))
	if err != nil {
		return fmt.Errorf("parse ACTOR_PRIVATE_KEY_JWK: %w", err)
	}
	privateKey, err := webkey.ImportPrivate(key)
	if err != nil {
		return fmt.Errorf("import actor private key: %w", err)
	}

	actorSetters, err := fed.SetActorDispatcher(actorTemplate, actorDispatcher(cfg))
	if err != nil {
		return err
	}
	actorSetters.SetKeyPairDispatcher(keyPairDispatcher(cfg.ActorHandle, privateKey))

	if _, err := fed.SetOutboxDispatcher(outboxTemplate, emptyCollection); err != nil {
		return err
	}
	if _, err := fed.SetFollowingDispatcher(followingTemplate, emptyCollection); err != nil {
		return err
	}
	if _, err := fed.SetFollowersDispatcher(followersTemplate, emptyCollection); err != nil {
		return err
	}

	inboxSetters, err := fed.SetInboxListeners(inboxTemplate, sharedInboxTmpl)
	if err != nil {
		return err
	}
	inboxSetters.On("Follow", handleFollow(cfg.ActorHandle, cfg.PreferSharedInbox))

	return nil
}

// actorDispatcher builds the Person document for the single configured
// handle; any other handle is not found.
func actorDispatcher(cfg *config.Config) federation.ActorDispatcher {
	return func(ctx *federation.RequestContext, handle string) (federation.Optional[interface{}], error) {
		if handle != cfg.ActorHandle {
			return federation.NotFound[interface{}](), nil
		}

		actorURI, err := ctx.ActorURI(handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}
		inboxURI, err := ctx.InboxURI(handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}
		outboxURI, err := ctx.OutboxURI(handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}
		followingURI, err := ctx.FollowingURI(handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}
		followersURI, err := ctx.FollowersURI(handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}

		key, found, err := ctx.ActorKey(ctx.Request.Context(), handle)
		if err != nil {
			return federation.Optional[interface{}]{}, err
		}

		doc := map[string]interface{}{
			"@context":          "https://www.w3.org/ns/activitystreams",
			"id":                actorURI,
			"type":              "Person",
			"preferredUsername": handle,
			"name":              cfg.ActorName,
			"summary":           cfg.ActorSummary,
			"inbox":             inboxURI,
			"outbox":            outboxURI,
			"following":         followingURI,
			"followers":         followersURI,
		}
		if found {
			doc["publicKey"] = key
		}
		return federation.Found[interface{}](doc), nil
	}
}

func keyPairDispatcher(handle string, privateKey *rsa.PrivateKey) federation.KeyPairDispatcher {
	return func(_ context.Context, requested string) (*rsa.PrivateKey, error) {
		if requested != handle {
			return nil, nil
		}
		return privateKey, nil
	}
}

// emptyCollection backs the outbox/following/followers of the demo actor:
// a real deployment persisting these would replace it with a
// database-backed CollectionDispatcher of the same shape.
func emptyCollection(_ *federation.RequestContext, _ string, _ string) ([]interface{}, string, error) {
	return nil, "", nil
}

// handleFollow replies to every inbound Follow with an Accept, sent
// through the queued send path so a delivery failure re-enters the
// registry's own retry loop.
func handleFollow(handle string, preferSharedInbox bool) federation.InboxListener {
	return func(ctx *federation.RequestContext, _ string, activity activitystreams.Activity) error {
		actorURI, err := ctx.ActorURI(handle)
		if err != nil {
			return err
		}
		recipient, err := remoteRecipient(ctx, activity.Actor)
		if err != nil {
			return err
		}

		accept := activitystreams.Activity{
			Type:   "Accept",
			Actor:  actorURI,
			Object: activity,
		}
		return ctx.SendActivity(ctx.Request.Context(), handle, []send.Recipient{recipient}, accept, send.Options{Mode: send.ModeQueued, PreferSharedInbox: preferSharedInbox})
	}
}
