package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed artifact.schema.json
var artifactSchemaJSON []byte

const artifactSchemaURL = "schema://smarthealth/tree-artifact.json"

var artifactSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(artifactSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse artifact schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(artifactSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(artifactSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return compiled, nil
})

type treeArtifact struct {
	Kind      string      `json:"kind"`
	Name      string      `json:"name"`
	Version   string      `json:"version"`
	NFeatures int         `json:"n_features"`
	Features  []string    `json:"features"`
	Classes   []int       `json:"classes"`
	Trees     []treeNodes `json:"trees"`
}

type treeNodes struct {
	Nodes []treeNode `json:"nodes"`
}

// treeNode uses the scikit-learn layout: split nodes send x[Feature] <=
// Threshold to Left, leaves carry the class distribution in Value.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n treeNode) leaf() bool { return len(n.Value) > 0 }

// Tree is a decision tree or a forest of them, voting by averaged leaf
// probabilities.
type Tree struct {
	name      string
	nFeatures int
	features  []string
	classes   []int
	trees     []treeNodes
}

// LoadTree reads a JSON tree artifact from disk.
func LoadTree(path string, _ Options) (Classifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	t, err := ParseTree(data)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTree validates and decodes a JSON tree artifact.
func ParseTree(data []byte) (*Tree, error) {
	sch, err := artifactSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("artifact schema validation failed: %w", err)
	}

	var art treeArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(art.Features) > 0 && len(art.Features) != art.NFeatures {
		return nil, fmt.Errorf("artifact lists %d feature names for n_features=%d", len(art.Features), art.NFeatures)
	}
	for ti, tr := range art.Trees {
		if err := checkTree(tr, art.NFeatures, len(art.Classes)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
	}

	name := art.Name
	if art.Version != "" {
		name += "@" + art.Version
	}
	return &Tree{
		name:      name,
		nFeatures: art.NFeatures,
		features:  art.Features,
		classes:   art.Classes,
		trees:     art.Trees,
	}, nil
}

// checkTree guarantees every walk terminates inside the node slice: children
// always point forward.
func checkTree(tr treeNodes, nFeatures, nClasses int) error {
	for i, n := range tr.Nodes {
		if n.leaf() {
			if len(n.Value) != nClasses {
				return fmt.Errorf("node %d: leaf has %d values, want %d", i, len(n.Value), nClasses)
			}
			continue
		}
		if n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(tr.Nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, child)
			}
		}
	}
	return nil
}

// Predict returns the class with the highest averaged probability. Ties go
// to the earlier class.
func (t *Tree) Predict(features []float32) (int, error) {
	if len(features) != t.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", t.nFeatures, len(features))
	}

	proba := make([]float64, len(t.classes))
	for _, tr := range t.trees {
		value := tr.walk(features)
		var total float64
		for _, v := range value {
			total += v
		}
		if total == 0 {
			continue
		}
		for i, v := range value {
			proba[i] += v / total
		}
	}

	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return t.classes[best], nil
}

func (tr treeNodes) walk(features []float32) []float64 {
	i := 0
	for {
		n := tr.Nodes[i]
		if n.leaf() {
			return n.Value
		}
		if float64(features[n.Feature]) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) NumFeatures() int { return t.nFeatures }

func (t *Tree) Classes() []int {
	out := make([]int, len(t.classes))
	copy(out, t.classes)
	return out
}

// FeatureNames returns the trained column order, or nil if unrecorded.
func (t *Tree) FeatureNames() []string {
	if len(t.features) == 0 {
		return nil
	}
	out := make([]string, len(t.features))
	copy(out, t.features)
	return out
}

// Name returns the artifact name and version.
func (t *Tree) Name() string { return t.name }

func (t *Tree) Close() error { return nil }
