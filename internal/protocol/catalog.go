// Package protocol holds the first-aid protocol catalog and the mapping
// from classified intents to protocol ids. The catalog is loaded once at
// startup and is read-only afterwards.
package protocol

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/conrumbo/conrumbo/internal/nlp"
)

// Protocol is a named, ordered sequence of instructional steps for one
// emergency type.
type Protocol struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

// FallbackProtocolID is used when an intent is absent or unrecognized.
const FallbackProtocolID = "pa_inconsciente_v1"

var intentProtocols = map[nlp.Intent]string{
	nlp.IntentParadaRespiratoria: "pa_no_respira_v1",
	nlp.IntentAtragantamiento:    "pa_atragantamiento_v1",
	nlp.IntentHemorragia:         "pa_hemorragia_v1",
	nlp.IntentInconsciente:       "pa_inconsciente_v1",
	nlp.IntentConvulsiones:       "pa_convulsiones_v1",
	nlp.IntentQuemadura:          "pa_quemadura_v1",
}

// ForIntent resolves an intent to a protocol id. Total: unknown intents
// resolve to the fallback protocol.
func ForIntent(intent nlp.Intent) string {
	if id, ok := intentProtocols[intent]; ok {
		return id
	}
	return FallbackProtocolID
}

// Catalog is a read-only lookup from protocol id to Protocol.
type Catalog struct {
	protocols map[string]Protocol
}

// Load reads the catalog from a JSON file mapping protocol id to
// {title, steps}. A load failure is fatal to startup, not per-request.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocols: %w", err)
	}
	var protocols map[string]Protocol
	if err := json.Unmarshal(data, &protocols); err != nil {
		return nil, fmt.Errorf("parse protocols: %w", err)
	}
	if len(protocols) == 0 {
		return nil, fmt.Errorf("protocols file %s is empty", path)
	}
	return &Catalog{protocols: protocols}, nil
}

// NewCatalog builds a catalog from an in-memory map. The map is copied.
func NewCatalog(protocols map[string]Protocol) *Catalog {
	m := make(map[string]Protocol, len(protocols))
	for id, p := range protocols {
		m[id] = p
	}
	return &Catalog{protocols: m}
}

// Get returns the protocol for id, with ok reporting whether it exists.
func (c *Catalog) Get(id string) (Protocol, bool) {
	p, ok := c.protocols[id]
	return p, ok
}

// Has reports whether the catalog contains id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.protocols[id]
	return ok
}

// Len returns the number of protocols in the catalog.
func (c *Catalog) Len() int {
	return len(c.protocols)
}
