package models

// Event is a universal lifecycle event name. Each native format maps a
// subset of its maintainer-script surface onto these eight events; the
// kebab-case String form doubles as the script file name in the
// intermediate layout.
type Event int

const (
	EventPreInstall Event = iota
	EventPreUpgrade
	EventPostInstall
	EventPostUpgrade
	EventPreRemove
	EventPreRemoveBeforeUpgrade
	EventPostRemove
	EventPostUpgradeComplete
)

var eventNames = map[Event]string{
	EventPreInstall:             "pre-install",
	EventPreUpgrade:             "pre-upgrade",
	EventPostInstall:            "post-install",
	EventPostUpgrade:            "post-upgrade",
	EventPreRemove:              "pre-remove",
	EventPreRemoveBeforeUpgrade: "pre-remove-before-upgrade",
	EventPostRemove:             "post-remove",
	EventPostUpgradeComplete:    "post-upgrade-complete",
}

// String returns the universal event name
func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return "unknown"
}

// ParseEvent maps a universal event name back to its Event
func ParseEvent(s string) (Event, bool) {
	for e, n := range eventNames {
		if n == s {
			return e, true
		}
	}
	return 0, false
}

// Events lists all universal events in install/upgrade/remove order
func Events() []Event {
	return []Event{
		EventPreInstall,
		EventPreUpgrade,
		EventPostInstall,
		EventPostUpgrade,
		EventPreRemove,
		EventPreRemoveBeforeUpgrade,
		EventPostRemove,
		EventPostUpgradeComplete,
	}
}
