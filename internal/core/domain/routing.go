package domain

// EntityKind distinguishes the three name spaces the Routing Tables track.
type EntityKind string

const (
	EntityTool     EntityKind = "tool"
	EntityPrompt   EntityKind = "prompt"
	EntityResource EntityKind = "resource"
)

// RoutingEntry is the value stored against an entity name: the upstream
// that owns it, and last-writer-wins is the documented conflict policy
// when two upstreams expose the same name.
type RoutingEntry struct {
	UpstreamName string
}

// Descriptor is the minimal shape the Aggregator needs from a listing
// response entry to namespace and route it. DisplayField holds whichever
// field is human-readable for this entity kind (description for
// tools/prompts, name for resources/templates); IdentityField is the
// machine-identifying field (tool name, prompt name, resource URI) and is
// never altered.
type Descriptor struct {
	Raw           map[string]any
	IdentityField string
	DisplayField  string
}
