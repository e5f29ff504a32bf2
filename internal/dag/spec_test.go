package dag

import "testing"

const sampleYAML = `
application_name: wordcount
nodes:
  - id: source
    kind: Source
    parallelism: 1
  - id: keyby
    kind: KeyBy
    parallelism: 1
  - id: reduce
    kind: Reduce
    parallelism: 2
edges:
  - from: source
    to: keyby
    kind: Forward
  - from: keyby
    to: reduce
    kind: HashBy
    key_selector: word
`

func TestLoadYAMLBuildsGraph(t *testing.T) {
	name, sg, err := LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if name != "wordcount" {
		t.Fatalf("name = %q", name)
	}
	if len(sg.Nodes) != 3 || len(sg.Edges) != 2 {
		t.Fatalf("graph = %+v", sg)
	}
	if _, err := Compile(name, sg); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestLoadYAMLRejectsMissingNodes(t *testing.T) {
	if _, _, err := LoadYAML([]byte("application_name: empty\n")); err == nil {
		t.Fatalf("expected schema validation error for missing nodes")
	}
}

func TestLoadJSONBuildsGraph(t *testing.T) {
	doc := `{
		"application_name": "wordcount",
		"nodes": [
			{"id": "source", "kind": "Source", "parallelism": 1},
			{"id": "sink", "kind": "Sink", "parallelism": 1}
		],
		"edges": [
			{"from": "source", "to": "sink", "kind": "Forward"}
		]
	}`
	name, sg, err := LoadJSON([]byte(doc))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if name != "wordcount" || len(sg.Nodes) != 2 {
		t.Fatalf("name=%q sg=%+v", name, sg)
	}
}

func TestLoadJSONRejectsUnknownOperatorKind(t *testing.T) {
	doc := `{
		"application_name": "bad",
		"nodes": [{"id": "a", "kind": "NotARealKind", "parallelism": 1}]
	}`
	if _, _, err := LoadJSON([]byte(doc)); err == nil {
		t.Fatalf("expected schema validation error for unknown kind")
	}
}
