package canvas

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"sketchbook/internal/domain"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 1

const schemaURL = "https://sketchbook.local/schemas/snapshot.json"

//go:embed snapshot.schema.json
var schemaJSON []byte

var snapshotSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("canvas: parse snapshot schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("canvas: add snapshot schema: %v", err))
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("canvas: compile snapshot schema: %v", err))
	}
	return sch
}

// snapshot is the persisted JSON form of a document.
type snapshot struct {
	Schema int     `json:"schema"`
	Shapes []Shape `json:"shapes"`
	Camera *Camera `json:"camera,omitempty"`
}

func encode(shapes map[string]Shape, cam Camera) (domain.Snapshot, error) {
	snap := snapshot{Schema: SchemaVersion, Shapes: sortedShapes(shapes), Camera: &cam}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return domain.Snapshot(data), nil
}

// decode validates snap against the snapshot schema and parses it.
// Every failure wraps domain.ErrInvalidSnapshot.
func decode(snap domain.Snapshot) (map[string]Shape, Camera, error) {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(snap)))
	if err != nil {
		return nil, Camera{}, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
	}
	if err := snapshotSchema.Validate(inst); err != nil {
		return nil, Camera{}, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
	}

	var s snapshot
	if err := json.Unmarshal([]byte(snap), &s); err != nil {
		return nil, Camera{}, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
	}
	shapes := make(map[string]Shape, len(s.Shapes))
	for _, sh := range s.Shapes {
		if _, dup := shapes[sh.ID]; dup {
			return nil, Camera{}, fmt.Errorf("%w: duplicate shape id %q", domain.ErrInvalidSnapshot, sh.ID)
		}
		shapes[sh.ID] = sh
	}
	cam := DefaultCamera
	if s.Camera != nil {
		cam = *s.Camera
	}
	return shapes, cam, nil
}

func sortedShapes(shapes map[string]Shape) []Shape {
	out := make([]Shape, 0, len(shapes))
	for _, sh := range shapes {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}
