package eventflow

import (
	"github.com/randalmurphal/eventflow/pkg/eventflow/event"
)

// registration is one app as recorded by AddPublisher or AddSubscriber.
type registration struct {
	name       string
	role       string
	consumes   []event.Kind
	produces   []event.Kind
	publisher  Publisher
	subscriber Subscriber
	// inboxes is keyed by consumed kind; nil for publishers.
	inboxes map[event.Kind]*inbox
}

// orderedInboxes returns the inboxes in consumes order.
func (r *registration) orderedInboxes() []*inbox {
	out := make([]*inbox, 0, len(r.consumes))
	for _, k := range r.consumes {
		out = append(out, r.inboxes[k])
	}
	return out
}

// consumerTable maps every consumed kind to its destinations, one per
// subscriber, in registration order.
func consumerTable(regs []*registration) map[event.Kind][]*inbox {
	table := make(map[event.Kind][]*inbox)
	for _, reg := range regs {
		for _, k := range reg.consumes {
			table[k] = append(table[k], reg.inboxes[k])
		}
	}
	return table
}

// outboundTable builds a producer's private routing map from the global one.
// Every produced kind gets an entry, empty when nobody consumes it.
// The slices are copies so no two proxies share backing arrays.
func outboundTable(produces []event.Kind, consumers map[event.Kind][]*inbox) map[event.Kind][]*inbox {
	table := make(map[event.Kind][]*inbox, len(produces))
	for _, k := range produces {
		table[k] = append([]*inbox{}, consumers[k]...)
	}
	return table
}

// Topology describes the routing the engine builds, by name.
type Topology struct {
	// Consumers maps each consumed kind to the subscribers receiving it.
	Consumers map[event.Kind][]string
	// Outbound maps each producing runner to its routing table.
	// Produced kinds with no consumer have an empty, non-nil slice.
	Outbound map[string]map[event.Kind][]string
}

// DestinationsFor returns the consumers runner reaches with kind.
func (t Topology) DestinationsFor(runner string, kind event.Kind) []string {
	return t.Outbound[runner][kind]
}

func buildTopology(regs []*registration) Topology {
	consumers := consumerTable(regs)

	topo := Topology{
		Consumers: make(map[event.Kind][]string, len(consumers)),
		Outbound:  make(map[string]map[event.Kind][]string),
	}
	for k, dests := range consumers {
		topo.Consumers[k] = inboxNames(dests)
	}
	for _, reg := range regs {
		if len(reg.produces) == 0 {
			continue
		}
		routes := outboundTable(reg.produces, consumers)
		named := make(map[event.Kind][]string, len(routes))
		for k, dests := range routes {
			named[k] = inboxNames(dests)
		}
		topo.Outbound[reg.name] = named
	}
	return topo
}

func inboxNames(dests []*inbox) []string {
	names := make([]string, len(dests))
	for i, d := range dests {
		names[i] = d.consumer
	}
	return names
}

// uniqueKinds drops repeated kinds, keeping first occurrence order.
func uniqueKinds(kinds []event.Kind) []event.Kind {
	seen := make(map[event.Kind]bool, len(kinds))
	out := make([]event.Kind, 0, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func hasZeroKind(kinds []event.Kind) bool {
	for _, k := range kinds {
		if k.IsZero() {
			return true
		}
	}
	return false
}
