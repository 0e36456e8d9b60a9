package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/stream"
)

// Scenario scripts one run of the stream pipeline.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Policy is the commit failure policy: advance (default) or halt.
	Policy string `yaml:"policy,omitempty"`

	// Capacity is the transport's in-flight limit. Default 1.
	Capacity int `yaml:"capacity,omitempty"`

	// PageSize is passed through to the page requests.
	PageSize int `yaml:"page_size,omitempty"`

	// Checkpoint is the seq stored before the run starts, 0 for none.
	Checkpoint int `yaml:"checkpoint,omitempty"`

	// FailCommit lists events whose first commit fails.
	FailCommit []int `yaml:"fail_commit,omitempty"`

	// FailDecrypt lists events that never decrypt.
	FailDecrypt []int `yaml:"fail_decrypt,omitempty"`

	// Pages are the server's responses, one per request, in order.
	Pages []Page `yaml:"pages"`

	Assertions []Assertion `yaml:"assertions"`
}

// Page is one scripted response.
type Page struct {
	// Status defaults to 200. A failure status with events models a gap:
	// the server still returns what it has.
	Status  int             `yaml:"status,omitempty"`
	HasMore bool            `yaml:"has_more,omitempty"`
	Events  []ScriptedEvent `yaml:"events,omitempty"`
}

// ScriptedEvent describes one event by sequence number.
type ScriptedEvent struct {
	Seq          int            `yaml:"seq"`
	Kind         string         `yaml:"kind"`
	Conversation string         `yaml:"conversation,omitempty"`
	Sender       string         `yaml:"sender,omitempty"`
	Body         map[string]any `yaml:"body,omitempty"`
}

// Assertion checks the trace or the end state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is a trace label: "commit" matches every commit, "commit:2"
	// only event 2's (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Actions are labels expected in order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number (trace_count, failures, pending).
	Count int `yaml:"count,omitempty"`

	// Event is the expected checkpoint seq (checkpoint).
	Event int `yaml:"event,omitempty"`

	// Stage is the failure stage (failures).
	Stage string `yaml:"stage,omitempty"`

	// Value is the expected flag (caught_up).
	Value bool `yaml:"value,omitempty"`

	// Table and Rows give the expected table content (final_state).
	Table string   `yaml:"table,omitempty"`
	Rows  []string `yaml:"rows,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCheckpoint    = "checkpoint"
	AssertCaughtUp      = "caught_up"
	AssertFailures      = "failures"
	AssertPending       = "pending"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos do not silently disable an assertion.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := stream.ParsePolicy(s.Policy); err != nil {
		return err
	}
	if s.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}
	if len(s.Pages) == 0 {
		return fmt.Errorf("pages list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[int]bool)
	for i, page := range s.Pages {
		if page.Status != 0 && (page.Status < 100 || page.Status > 599) {
			return fmt.Errorf("pages[%d]: invalid status %d", i, page.Status)
		}
		for j, ev := range page.Events {
			if ev.Seq <= 0 {
				return fmt.Errorf("pages[%d].events[%d]: seq must be positive", i, j)
			}
			if ev.Kind == "" {
				return fmt.Errorf("pages[%d].events[%d]: kind is required", i, j)
			}
			seen[ev.Seq] = true
		}
	}
	for _, seq := range s.FailCommit {
		if !seen[seq] {
			return fmt.Errorf("fail_commit: event %d is not in any page", seq)
		}
	}
	for _, seq := range s.FailDecrypt {
		if !seen[seq] {
			return fmt.Errorf("fail_decrypt: event %d is not in any page", seq)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains, AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertFailures:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for failures", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
	case AssertCheckpoint, AssertCaughtUp, AssertPending:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// event builds the wire event it describes.
func (e ScriptedEvent) event(ids *idMap) (ir.UpdateEvent, error) {
	body := []byte("{}")
	if len(e.Body) > 0 {
		var err error
		if body, err = json.Marshal(e.Body); err != nil {
			return ir.UpdateEvent{}, fmt.Errorf("event %d: body: %w", e.Seq, err)
		}
	}
	return ir.UpdateEvent{
		ID:             ids.id(e.Seq),
		Kind:           ir.Kind(e.Kind),
		ConversationID: e.Conversation,
		SenderID:       e.Sender,
		Payload:        body,
	}, nil
}

// response builds the transport outcome for p.
func (p Page) response(ids *idMap) (ir.Response, error) {
	status := p.Status
	if status == 0 {
		status = http.StatusOK
	}
	resp := ir.Response{StatusCode: status}
	if status >= 300 {
		resp.Err = fmt.Errorf("status %d %s", status, strings.ToLower(http.StatusText(status)))
		if len(p.Events) == 0 {
			return resp, nil
		}
	}

	batch := ir.EventBatch{HasMore: p.HasMore}
	for _, se := range p.Events {
		ev, err := se.event(ids)
		if err != nil {
			return ir.Response{}, err
		}
		batch.Events = append(batch.Events, ev)
	}
	body, err := ir.EncodePage(batch)
	if err != nil {
		return ir.Response{}, err
	}
	resp.Body = body
	return resp, nil
}
