package activitystreams

// parentType maps each ActivityStreams activity type this package knows
// about to its immediate superclass, following the vocabulary's class
// hierarchy (https://www.w3.org/TR/activitystreams-vocabulary/#activity-types).
// Types with no entry here are treated as direct children of Activity.
var parentType = map[string]string{
	"Accept":           "Activity",
	"TentativeAccept":  "Accept",
	"Add":              "Activity",
	"Announce":         "Activity",
	"Arrive":           "Activity",
	"Block":            "Ignore",
	"Create":           "Activity",
	"Delete":           "Activity",
	"Dislike":          "Activity",
	"Flag":             "Activity",
	"Follow":           "Activity",
	"Ignore":           "Activity",
	"Invite":           "Offer",
	"Join":             "Activity",
	"Leave":            "Activity",
	"Like":             "Activity",
	"Listen":           "Activity",
	"Move":             "Activity",
	"Offer":            "Activity",
	"Question":         "Activity",
	"Reject":           "Activity",
	"TentativeReject":  "Reject",
	"Read":             "Activity",
	"Remove":           "Activity",
	"Travel":           "Arrive",
	"Undo":             "Activity",
	"Update":           "Activity",
	"View":             "Activity",
}

// TypeChain walks an activity type's superclass chain from the type
// itself up to and including "Activity", the order inbox listener lookup
// says inbox listener lookup must search: most specific first.
func TypeChain(activityType string) []string {
	chain := []string{activityType}
	current := activityType
	for current != "Activity" {
		parent, known := parentType[current]
		if !known {
			parent = "Activity"
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain
}
