// Package classifier wraps the TensorFlow Lite model behind a load-once,
// reuse-forever engine.
package classifier

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	tflite "github.com/tphakala/go-tflite"

	"github.com/hepavision/fibrostage/internal/imaging"
)

// Provider defines the interface the prediction flow depends on, so tests
// can substitute a stub for the real interpreter.
type Provider interface {
	// Ready reports whether the model is usable. When it is not, the
	// second value carries the human-readable load error.
	Ready() (bool, string)

	// Classify runs inference on a preprocessed image tensor and returns
	// the model's probability vector, one entry per class.
	Classify(t imaging.Tensor) ([]float32, error)
}

// Engine holds the process-wide cached model handle. The first call to
// Ready or Classify performs the load; concurrent first calls wait on the
// same single-flight load and observe its outcome.
type Engine struct {
	modelPath string

	once    sync.Once
	mu      sync.Mutex // serializes interpreter access; tflite interpreters are not concurrency-safe
	model   *tflite.Model
	interp  *tflite.Interpreter
	loadErr string
}

// NewEngine creates an Engine for the model artifact at modelPath. The
// artifact is not touched until first use.
func NewEngine(modelPath string) *Engine {
	return &Engine{modelPath: modelPath}
}

func (e *Engine) load() {
	if _, err := os.Stat(e.modelPath); err != nil {
		e.loadErr = fmt.Sprintf("model file not found at: %s", e.modelPath)
		log.Error().Str("path", e.modelPath).Msg("Model file not found")
		return
	}

	model := tflite.NewModelFromFile(e.modelPath)
	if model == nil {
		e.loadErr = fmt.Sprintf("cannot load TensorFlow Lite model from: %s", e.modelPath)
		log.Error().Str("path", e.modelPath).Msg("Failed to load model")
		return
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(1)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		model.Delete()
		e.loadErr = "cannot create TensorFlow Lite interpreter"
		log.Error().Str("path", e.modelPath).Msg("Failed to create interpreter")
		return
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		model.Delete()
		e.loadErr = fmt.Sprintf("tensor allocation failed: %v", status)
		log.Error().Str("path", e.modelPath).Msg("Tensor allocation failed")
		return
	}

	e.model = model
	e.interp = interp
	log.Info().Str("path", e.modelPath).Msg("Model loaded")
}

// Ready reports whether the cached model handle is usable, loading it on
// first call. Callers must check this before Classify; a missing or corrupt
// artifact is reported here as text, never as a panic.
func (e *Engine) Ready() (bool, string) {
	e.once.Do(e.load)
	return e.interp != nil, e.loadErr
}

// Classify runs the model on a (1, H, W, 3) tensor and returns its
// probability vector.
func (e *Engine) Classify(t imaging.Tensor) ([]float32, error) {
	if ready, loadErr := e.Ready(); !ready {
		return nil, fmt.Errorf("model not loaded: %s", loadErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	input := e.interp.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	if got, want := len(input.Float32s()), len(t.Data); got != want {
		return nil, fmt.Errorf("input tensor size mismatch: model expects %d values, got %d", got, want)
	}
	copy(input.Float32s(), t.Data)

	if status := e.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := e.interp.GetOutputTensor(0)
	if output == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	probs := make([]float32, output.Dim(output.NumDims()-1))
	copy(probs, output.Float32s())
	return probs, nil
}
