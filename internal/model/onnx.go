package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortMu guards process-wide onnxruntime environment setup.
var ortMu sync.Mutex

// ONNX runs a scikit-learn classifier exported with skl2onnx: a float32
// [1, N] input and an int64 label output.
type ONNX struct {
	session   *ort.DynamicAdvancedSession
	nFeatures int
	classes   []int
}

// LoadONNX creates an inference session for the model at path.
func LoadONNX(path string, opts Options) (Classifier, error) {
	if err := initORT(opts.ORTLibrary); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model has no inputs or outputs")
	}

	inputName := opts.InputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	outputName := opts.OutputName
	if outputName == "" {
		outputName = outputs[0].Name
	}

	nFeatures := 0
	for _, in := range inputs {
		if in.Name == inputName && len(in.Dimensions) == 2 && in.Dimensions[1] > 0 {
			nFeatures = int(in.Dimensions[1])
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &ONNX{
		session:   session,
		nFeatures: nFeatures,
		classes:   rangeClasses(opts.NumClasses),
	}, nil
}

func initORT(library string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if library == "" {
		return errors.New("onnxruntime shared library path is required")
	}
	ort.SetSharedLibraryPath(library)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

func (o *ONNX) Predict(features []float32) (int, error) {
	if o.nFeatures > 0 && len(features) != o.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", o.nFeatures, len(features))
	}
	row := make([]float32, len(features))
	copy(row, features)

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(row))), row)
	if err != nil {
		return 0, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	output, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, fmt.Errorf("output tensor: %w", err)
	}
	defer func() { _ = output.Destroy() }()

	if err := o.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return 0, fmt.Errorf("run session: %w", err)
	}
	return int(output.GetData()[0]), nil
}

func (o *ONNX) NumFeatures() int { return o.nFeatures }

func (o *ONNX) Classes() []int {
	if o.classes == nil {
		return nil
	}
	out := make([]int, len(o.classes))
	copy(out, o.classes)
	return out
}

// Close destroys the session and tears down the onnxruntime environment.
func (o *ONNX) Close() error {
	ortMu.Lock()
	defer ortMu.Unlock()
	var errs []error
	if o.session != nil {
		errs = append(errs, o.session.Destroy())
		o.session = nil
	}
	if ort.IsInitialized() {
		errs = append(errs, ort.DestroyEnvironment())
	}
	return errors.Join(errs...)
}
