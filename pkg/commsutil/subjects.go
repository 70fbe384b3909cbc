package commsutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Default COMMS subjects used by the outbound delivery queue.
const (
	// SubjectOutboxPrefix is the root of every per-inbox delivery subject.
	SubjectOutboxPrefix = "federation.outbox"
	// SubjectOutboxRetry names a retry subject. Nothing in this module
	// publishes to it: the retry loop re-enqueues through the queue like
	// any first attempt.
	SubjectOutboxRetry = "federation.outbox.retry"
)

// BuildOutboxSubject builds a COMMS subject for messages destined at a given
// inbox host. Subjects are host-scoped (not full-URL-scoped) so a single
// durable consumer can fan a host's deliveries through one stream while
// distinct hosts are still processed independently.
func BuildOutboxSubject(inbox string) string {
	host := inboxHost(inbox)
	return fmt.Sprintf("%s.%s", SubjectOutboxPrefix, sanitizeSubjectToken(host))
}

// inboxHost extracts the host component of an inbox URL, falling back to
// the raw string (sanitized) if it does not parse as a URL.
func inboxHost(inbox string) string {
	u, err := url.Parse(inbox)
	if err != nil || u.Host == "" {
		return inbox
	}
	return u.Host
}

// sanitizeSubjectToken replaces characters NATS subjects treat specially
// (".", "*", ">", whitespace) so a host name is always a safe subject token.
func sanitizeSubjectToken(s string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return replacer.Replace(s)
}
