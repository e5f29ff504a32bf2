package dag

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// graphSchema is the trust-boundary validation gate for a user-submitted
// pipeline description: anything reaching BuildJobGraph has already
// satisfied this shape, so Validate only needs to check semantic
// invariants (duplicate ids, dangling edges, cycles).
const graphSchema = `{
  "type": "object",
  "required": ["application_name", "nodes"],
  "properties": {
    "application_name": {"type": "string", "minLength": 1},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind", "parallelism"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "enum": ["Source", "FlatMap", "Filter", "WatermarkAssigner", "KeyBy", "WindowAssigner", "Reduce", "CoProcess", "Sink"]},
          "parallelism": {"type": "integer", "minimum": 1},
          "user_function": {"type": "string"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "kind"],
        "properties": {
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "enum": ["Forward", "HashBy", "Broadcast"]},
          "key_selector": {"type": "string"}
        }
      }
    }
  }
}`

// streamGraphSpec is the user-facing pipeline description format, loaded
// from YAML or JSON and validated against graphSchema before being turned
// into a StreamGraph.
type streamGraphSpec struct {
	ApplicationName string `json:"application_name" yaml:"application_name"`
	Nodes           []struct {
		ID           string `json:"id" yaml:"id"`
		Kind         string `json:"kind" yaml:"kind"`
		Parallelism  int    `json:"parallelism" yaml:"parallelism"`
		UserFunction string `json:"user_function" yaml:"user_function"`
	} `json:"nodes" yaml:"nodes"`
	Edges []struct {
		From        string `json:"from" yaml:"from"`
		To          string `json:"to" yaml:"to"`
		Kind        string `json:"kind" yaml:"kind"`
		KeySelector string `json:"key_selector" yaml:"key_selector"`
	} `json:"edges" yaml:"edges"`
}

// LoadYAML parses a YAML pipeline description into a StreamGraph,
// validating it against the JSON schema first (by round-tripping through
// JSON, since gojsonschema validates JSON documents).
func LoadYAML(data []byte) (name string, sg *StreamGraph, err error) {
	var spec streamGraphSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return "", nil, fmt.Errorf("dag: parse yaml: %w", err)
	}
	asJSON, err := json.Marshal(spec)
	if err != nil {
		return "", nil, fmt.Errorf("dag: re-encode spec as json: %w", err)
	}
	if err := validateAgainstSchema(asJSON); err != nil {
		return "", nil, err
	}
	sg, err = specToGraph(spec)
	return spec.ApplicationName, sg, err
}

// LoadJSON parses and validates a JSON pipeline description into a
// StreamGraph.
func LoadJSON(data []byte) (name string, sg *StreamGraph, err error) {
	if err := validateAgainstSchema(data); err != nil {
		return "", nil, err
	}
	var spec streamGraphSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return "", nil, fmt.Errorf("dag: parse json: %w", err)
	}
	sg, err = specToGraph(spec)
	return spec.ApplicationName, sg, err
}

func validateAgainstSchema(doc []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(graphSchema)
	docLoader := gojsonschema.NewBytesLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("dag: schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("dag: pipeline description failed validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func specToGraph(spec streamGraphSpec) (*StreamGraph, error) {
	sg := &StreamGraph{
		Nodes: make([]StreamNode, 0, len(spec.Nodes)),
		Edges: make([]StreamEdge, 0, len(spec.Edges)),
	}
	for _, n := range spec.Nodes {
		sg.Nodes = append(sg.Nodes, StreamNode{
			ID:           n.ID,
			Kind:         OperatorKind(n.Kind),
			Parallelism:  n.Parallelism,
			UserFunction: n.UserFunction,
		})
	}
	for _, e := range spec.Edges {
		sg.Edges = append(sg.Edges, StreamEdge{
			From:        e.From,
			To:          e.To,
			Kind:        EdgeKind(e.Kind),
			KeySelector: e.KeySelector,
		})
	}
	if err := sg.Validate(); err != nil {
		return nil, err
	}
	return sg, nil
}
