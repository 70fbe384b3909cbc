package send

// Recipient is one addressee of an outbound activity: its personal
// inbox, and optionally a shared inbox its server also accepts
// federated deliveries on.
type Recipient struct {
	InboxID     string
	SharedInbox string
}

// ExtractInboxesOptions configures ExtractInboxes.
type ExtractInboxesOptions struct {
	// PreferSharedInbox routes to a recipient's shared inbox instead of
	// its personal inbox when one is available.
	PreferSharedInbox bool
}

// ExtractInboxes reduces a recipient set to the de-duplicated set of
// inboxes to POST to: shared inbox when present and preferred, else the
// personal inbox; recipients lacking any inbox are silently dropped.
func ExtractInboxes(recipients []Recipient, opts ExtractInboxesOptions) []string {
	seen := make(map[string]struct{}, len(recipients))
	inboxes := make([]string, 0, len(recipients))

	for _, r := range recipients {
		inbox := r.InboxID
		if opts.PreferSharedInbox && r.SharedInbox != "" {
			inbox = r.SharedInbox
		}
		if inbox == "" {
			continue
		}
		if _, dup := seen[inbox]; dup {
			continue
		}
		seen[inbox] = struct{}{}
		inboxes = append(inboxes, inbox)
	}

	return inboxes
}
