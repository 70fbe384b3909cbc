package send

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractInboxes_DropsRecipientsWithoutInbox(t *testing.T) {
	recipients := []Recipient{
		{InboxID: "https://a.example/inbox"},
		{InboxID: ""},
	}
	assert.Equal(t, []string{"https://a.example/inbox"}, ExtractInboxes(recipients, ExtractInboxesOptions{}))
}

func TestExtractInboxes_DeduplicatesSharedInbox(t *testing.T) {
	recipients := []Recipient{
		{InboxID: "https://a.example/users/alice/inbox", SharedInbox: "https://a.example/inbox"},
		{InboxID: "https://a.example/users/bob/inbox", SharedInbox: "https://a.example/inbox"},
	}
	got := ExtractInboxes(recipients, ExtractInboxesOptions{PreferSharedInbox: true})
	assert.Equal(t, []string{"https://a.example/inbox"}, got)
}

func TestExtractInboxes_IgnoresSharedInboxWhenNotPreferred(t *testing.T) {
	recipients := []Recipient{
		{InboxID: "https://a.example/users/alice/inbox", SharedInbox: "https://a.example/inbox"},
	}
	got := ExtractInboxes(recipients, ExtractInboxesOptions{PreferSharedInbox: false})
	assert.Equal(t, []string{"https://a.example/users/alice/inbox"}, got)
}

func TestExtractInboxes_FallsBackToPersonalWhenNoSharedInbox(t *testing.T) {
	recipients := []Recipient{
		{InboxID: "https://a.example/users/alice/inbox"},
	}
	got := ExtractInboxes(recipients, ExtractInboxesOptions{PreferSharedInbox: true})
	assert.Equal(t, []string{"https://a.example/users/alice/inbox"}, got)
}

func TestExtractInboxes_EmptyRecipientsYieldsEmptySet(t *testing.T) {
	assert.Empty(t, ExtractInboxes(nil, ExtractInboxesOptions{}))
}
