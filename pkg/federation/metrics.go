package federation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outboundDeliveriesTotal counts each outbound delivery attempt made by
// the retry loop, labeled by outcome, so operators can watch federation
// health without instrumenting every caller of Context.SendActivity.
var outboundDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "federation_outbound_deliveries_total",
	Help: "Outbound activity delivery attempts made by the queue retry loop, by outcome.",
}, []string{"outcome"})

// outboundGiveUpsTotal counts deliveries that exhausted the backoff
// schedule without succeeding.
var outboundGiveUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "federation_outbound_give_ups_total",
	Help: "Outbound deliveries abandoned after exhausting the backoff schedule.",
})

// inboxActivitiesTotal counts inbox POSTs by outcome (dispatched,
// duplicate, no_listener, unauthorized, malformed, error).
var inboxActivitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "federation_inbox_activities_total",
	Help: "Inbound activity POSTs processed, by outcome.",
}, []string{"outcome"})
