package harness

import (
	"bytes"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// DefaultDatabase is the database of a scenario that names none.
const DefaultDatabase = "test"

// Scenario scripts oplog entries for a set of versioned collections and
// the checks to run on the history they produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Database is the source database. Defaults to DefaultDatabase.
	Database string `yaml:"database,omitempty"`

	// Collections are the versioned collections.
	Collections []string `yaml:"collections"`

	// Prefix overrides the history collection prefix.
	Prefix string `yaml:"prefix,omitempty"`

	// OnStall decides what happens when a channel stalls: "stop" (default)
	// ends the run, "skip" skips the failed entry and continues.
	OnStall string `yaml:"on_stall,omitempty"`

	// Oplog is the scripted oplog, in order.
	Oplog []Step `yaml:"oplog"`

	// Assertions validate the stored history.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted oplog entry.
type Step struct {
	// Op is insert, update, delete or noop.
	Op string `yaml:"op"`

	// Collection the entry belongs to.
	Collection string `yaml:"collection"`

	// ID is the document _id. Required except for noop.
	ID interface{} `yaml:"id,omitempty"`

	// Doc holds the document fields of an insert, or the residual fields
	// of a delete. _id is added from ID.
	Doc yaml.Node `yaml:"doc,omitempty"`

	// Update is the update descriptor, e.g. {$set: {...}, $unset: {...}}
	// or a full replacement document.
	Update yaml.Node `yaml:"update,omitempty"`

	// Tick moves the clock to the next second before this entry.
	Tick bool `yaml:"tick,omitempty"`
}

// Step operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpNoop   = "noop"
)

// Stall policies.
const (
	OnStallStop = "stop"
	OnStallSkip = "skip"
)

// Assertion validates the history or channel state after a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "version_count": Number of snapshots of a document
	// - "latest": Checks the newest snapshot of a document
	// - "checkpoint": Resume point of a collection
	// - "channel_state": Final state of a collection channel
	Type string `yaml:"type"`

	Collection string      `yaml:"collection"`
	ID         interface{} `yaml:"id,omitempty"`

	// Count is the expected number of snapshots (version_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected body fields (latest). Subset match.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Version is the expected versioning_version (latest).
	Version *int64 `yaml:"version,omitempty"`

	// Deleted expects the newest snapshot to be a tombstone (latest).
	Deleted bool `yaml:"deleted,omitempty"`

	// TS is the expected resume point (checkpoint).
	TS *oplog.Timestamp `yaml:"ts,omitempty"`

	// State is the expected channel state (channel_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertVersionCount = "version_count"
	AssertLatest       = "latest"
	AssertCheckpoint   = "checkpoint"
	AssertChannelState = "channel_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(s.Collections) == 0 {
		return fmt.Errorf("collections list is required and must be non-empty")
	}

	if len(s.Oplog) == 0 {
		return fmt.Errorf("oplog list is required and must be non-empty")
	}

	switch s.OnStall {
	case "", OnStallStop, OnStallSkip:
	default:
		return fmt.Errorf("on_stall must be %q or %q, got %q", OnStallStop, OnStallSkip, s.OnStall)
	}

	for i, step := range s.Oplog {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	if st.Collection == "" {
		return fmt.Errorf("oplog[%d]: collection is required", index)
	}

	switch st.Op {
	case OpInsert, OpDelete:
		if st.ID == nil {
			return fmt.Errorf("oplog[%d]: id is required for %s", index, st.Op)
		}
	case OpUpdate:
		if st.ID == nil {
			return fmt.Errorf("oplog[%d]: id is required for update", index)
		}
		if st.Update.Kind != yaml.MappingNode {
			return fmt.Errorf("oplog[%d]: update must be a mapping", index)
		}
	case OpNoop:
	default:
		return fmt.Errorf("oplog[%d]: unknown op %q", index, st.Op)
	}

	if st.Doc.Kind != 0 && st.Doc.Kind != yaml.MappingNode {
		return fmt.Errorf("oplog[%d]: doc must be a mapping", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Collection == "" {
		return fmt.Errorf("assertions[%d]: collection is required", index)
	}

	switch a.Type {
	case AssertVersionCount:
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for version_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for version_count", index)
		}
	case AssertLatest:
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for latest", index)
		}
		if len(a.Expect) == 0 && a.Version == nil && !a.Deleted {
			return fmt.Errorf("assertions[%d]: latest needs expect, version or deleted", index)
		}
	case AssertCheckpoint:
		if a.TS == nil {
			return fmt.Errorf("assertions[%d]: ts is required for checkpoint", index)
		}
	case AssertChannelState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for channel_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// database returns the scenario database, defaulted.
func (s *Scenario) database() string {
	if s.Database == "" {
		return DefaultDatabase
	}
	return s.Database
}

// nodeValue converts a YAML node into a BSON value, keeping mapping key
// order as bson.D.
func nodeValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		d := make(bson.D, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			d = append(d, bson.E{Key: n.Content[i].Value, Value: v})
		}
		return d, nil
	case yaml.SequenceNode:
		a := make(bson.A, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
		return a, nil
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

// nodeDocument converts a mapping node into a document. An absent node is
// an empty document.
func nodeDocument(n *yaml.Node) (bson.D, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return bson.D{}, nil
	}
	d, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	return d, nil
}
