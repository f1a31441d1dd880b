// Package model loads pre-trained classifiers behind a single capability
// interface.
package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Artifact kinds.
const (
	KindTree = "tree"
	KindONNX = "onnx"
)

// Classifier predicts one class index for a feature row.
type Classifier interface {
	Predict(features []float32) (int, error)
	// NumFeatures is the expected row length, or 0 when the artifact does not
	// say.
	NumFeatures() int
	// Classes lists every class index the classifier can emit, or nil when
	// unknown.
	Classes() []int
	Close() error
}

// FeatureNamer is implemented by classifiers whose artifact records the
// trained column order.
type FeatureNamer interface {
	FeatureNames() []string
}

// Namer is implemented by classifiers whose artifact carries a name.
type Namer interface {
	Name() string
}

// Options carries backend specific settings.
type Options struct {
	ORTLibrary string
	InputName  string
	OutputName string
	NumClasses int
}

// Loader opens an artifact at path.
type Loader func(path string, opts Options) (Classifier, error)

var (
	loadersMu sync.RWMutex
	loaders   = map[string]Loader{
		KindTree: LoadTree,
		KindONNX: LoadONNX,
	}
)

// Register adds a loader for kind. Registering a kind twice is an error.
func Register(kind string, loader Loader) error {
	if kind == "" {
		return errors.New("model kind must not be empty")
	}
	if loader == nil {
		return fmt.Errorf("nil loader for model kind %q", kind)
	}
	loadersMu.Lock()
	defer loadersMu.Unlock()
	if _, dup := loaders[kind]; dup {
		return fmt.Errorf("model kind %q already registered", kind)
	}
	loaders[kind] = loader
	return nil
}

// Load opens the artifact at path with the loader registered for kind.
func Load(kind, path string, opts Options) (Classifier, error) {
	loadersMu.RLock()
	loader, ok := loaders[kind]
	loadersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model kind %q (supported: %v)", kind, Kinds())
	}
	clf, err := loader(path, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s model %s: %w", kind, path, err)
	}
	return clf, nil
}

// Kinds returns the registered artifact kinds.
func Kinds() []string {
	loadersMu.RLock()
	defer loadersMu.RUnlock()
	out := make([]string, 0, len(loaders))
	for k := range loaders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func rangeClasses(n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
