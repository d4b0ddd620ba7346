/*
actor.go - Actor kind registration and lookup

PURPOSE:
  Points are credited to two kinds of actors: architecture offices and
  independent professionals. Both accrue exactly the same way, so the engine
  never branches on the kind. Adapter packages register their kind here so
  storage and the API can turn stored type codes back into concrete kinds.

HOW IT WORKS:
  1. Adapter packages define their ActorKind implementations
  2. Adapter packages register them on init()
  3. Storage uses the registry to map legacy type codes ("1", "PR", "2", "ES")

USAGE:
  // In office/office.go
  func init() {
      generic.RegisterActorKind(Kind)
  }

  kind := generic.KindForCode("ES") // returns office.Kind

SEE ALSO:
  - office/office.go: Office adapter
  - professional/professional.go: Professional adapter
*/
package generic

import (
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// ACTOR KIND
// =============================================================================

// ActorKind identifies which population of actors a transaction credits.
// The generic package has NO knowledge of specific kinds.
type ActorKind interface {
	// KindID returns the stable identifier ("office", "professional").
	KindID() string

	// TypeCodes returns every transaction type code stored for this kind.
	// The first code is the one written for new transactions.
	TypeCodes() []string

	// Label is the display name used for unnamed actors ("Office #12").
	Label() string
}

// =============================================================================
// ACTOR KIND REGISTRY
// =============================================================================

var (
	kindRegistry = make(map[string]ActorKind)
	codeRegistry = make(map[string]ActorKind)
	registryMu   sync.RWMutex
)

// RegisterActorKind adds a kind and its type codes to the global registry.
// Call this from adapter package init() functions.
func RegisterActorKind(k ActorKind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kindRegistry[k.KindID()] = k
	for _, code := range k.TypeCodes() {
		codeRegistry[code] = k
	}
}

// LookupActorKind finds a registered kind by ID. Returns nil if not found.
func LookupActorKind(id string) ActorKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return kindRegistry[id]
}

// MustLookupActorKind finds a registered kind or panics.
func MustLookupActorKind(id string) ActorKind {
	k := LookupActorKind(id)
	if k == nil {
		panic(fmt.Sprintf("actor kind not registered: %s", id))
	}
	return k
}

// KindForCode maps a stored transaction type code to its kind.
// Returns nil for codes no adapter claims.
func KindForCode(code string) ActorKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return codeRegistry[code]
}

// ListActorKinds returns all registered kinds ordered by ID.
func ListActorKinds() []ActorKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]ActorKind, 0, len(kindRegistry))
	for _, k := range kindRegistry {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].KindID() < result[j].KindID() })
	return result
}

// =============================================================================
// STRING KIND - For testing and fallback
// =============================================================================

// StringKind is a simple kind used in tests or when an adapter isn't loaded.
type StringKind struct {
	ID    string
	Codes []string
	Name  string
}

func (k StringKind) KindID() string      { return k.ID }
func (k StringKind) TypeCodes() []string { return k.Codes }
func (k StringKind) Label() string {
	if k.Name == "" {
		return k.ID
	}
	return k.Name
}

// DisplayName returns the fallback display name for an actor without a record.
func DisplayName(kind ActorKind, id ActorID) string {
	label := "Actor"
	if kind != nil {
		label = kind.Label()
	}
	return fmt.Sprintf("%s #%s", label, id)
}
