package ledger

import (
	"slices"
	"strings"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// advances lists, for each lifecycle event, the status it must follow and
// the status it produces.
var advances = map[model.EventType]struct{ from, to model.Status }{
	model.EventInProcessing:   {model.StatusHarvested, model.StatusInProcessing},
	model.EventDrying:         {model.StatusInProcessing, model.StatusDrying},
	model.EventStored:         {model.StatusDrying, model.StatusStored},
	model.EventReadyForExport: {model.StatusStored, model.StatusReadyForExport},
	model.EventExported:       {model.StatusReadyForExport, model.StatusExported},
}

var annotations = []model.EventType{
	model.EventQualityControl,
	model.EventCertification,
	model.EventCertificationRevoked,
	model.EventTransport,
	model.EventNote,
}

// allowed is the transition allow-list, built once from advances and annotations.
var allowed = buildAllowed()

func buildAllowed() map[model.Status][]model.EventType {
	m := make(map[model.Status][]model.EventType, len(model.Lifecycle))
	for _, st := range model.Lifecycle {
		var list []model.EventType
		for _, et := range []model.EventType{
			model.EventInProcessing, model.EventDrying, model.EventStored,
			model.EventReadyForExport, model.EventExported,
		} {
			if advances[et].from == st {
				list = append(list, et)
			}
		}
		if st.Rank() > 0 {
			list = append(list, model.EventRevert)
		}
		list = append(list, annotations...)
		m[st] = list
	}
	return m
}

// AllowedEvents returns the event types that may follow the given status.
func AllowedEvents(current model.Status) []model.EventType {
	list := allowed[current]
	out := make([]model.EventType, len(list))
	copy(out, list)
	return out
}

// RequiresPrivilege reports whether appending the event type needs an
// elevated actor.
func RequiresPrivilege(eventType model.EventType) bool {
	return eventType == model.EventRevert
}

// Transition validates appending eventType to a chain whose microlot is in
// status current and returns the status afterwards. The allow-list decides;
// meta is consulted only for REVERT, whose target defaults to the immediately
// preceding status.
func Transition(current model.Status, eventType model.EventType, meta *model.EventMetadata) (model.Status, error) {
	if !eventType.IsValid() {
		return "", invalidf("unknown event type %q", eventType)
	}
	if !current.IsValid() {
		return "", transitionf("microlot has unknown status %q", current)
	}
	if eventType == model.EventHarvest {
		return "", transitionf("%s is only valid as the genesis block", eventType)
	}
	if !slices.Contains(allowed[current], eventType) {
		return "", rejectedTransition(current, eventType)
	}

	switch {
	case eventType.IsAnnotation():
		return current, nil
	case eventType == model.EventRevert:
		return revertTarget(current, meta)
	}
	return advances[eventType].to, nil
}

func rejectedTransition(current model.Status, eventType model.EventType) error {
	names := make([]string, 0, len(allowed[current]))
	for _, et := range allowed[current] {
		names = append(names, string(et))
	}
	if current.IsTerminal() {
		return transitionf("%s cannot follow %s: status is terminal (allowed: %s)", eventType, current, strings.Join(names, ", "))
	}
	return transitionf("%s cannot follow %s (allowed: %s)", eventType, current, strings.Join(names, ", "))
}

func revertTarget(current model.Status, meta *model.EventMetadata) (model.Status, error) {
	rank := current.Rank()
	if rank == 0 {
		return "", transitionf("%s has no earlier status to revert to", current)
	}
	if meta == nil || meta.Revert == nil || meta.Revert.To == "" {
		return model.Lifecycle[rank-1], nil
	}
	to := meta.Revert.To
	if !to.IsValid() {
		return "", invalidf("unknown revert target %q", to)
	}
	if to.Rank() >= rank {
		return "", transitionf("cannot revert from %s to %s", current, to)
	}
	return to, nil
}
