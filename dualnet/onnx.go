package dual

import (
	"os"
	"sync"

	"github.com/alphafour/game"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// OnnxEvaluator runs an exported model through ONNX Runtime. The model takes "input" shaped
// [1, features, height, width] and produces "policy" logits [1, actions] and "value" [1, 1], the
// value being for the player to move.
type OnnxEvaluator struct {
	Config
	sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewOnnxEvaluator loads the model. ORT_SHARED_LIBRARY_PATH points at the onnxruntime shared library
// when it is not in the default search path.
func NewOnnxEvaluator(modelPath string, conf Config) (*OnnxEvaluator, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid network config %+v", conf)
	}
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, errors.Wrap(ortInitErr, "init onnxruntime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer options.Destroy()
	if err = options.SetIntraOpNumThreads(1); err != nil {
		return nil, errors.WithStack(err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, errors.Wrapf(err, "create session for %s", modelPath)
	}
	return &OnnxEvaluator{Config: conf, session: session}, nil
}

func (e *OnnxEvaluator) Infer(state game.State) ([]float32, float32, error) {
	if !e.fits(state) {
		return nil, 0, errors.Errorf("model built for %dx%d, got %dx%d", e.Height, e.Width, state.Rows(), state.Cols())
	}
	input, err := ort.NewTensor(ort.NewShape(1, int64(e.Features), int64(e.Height), int64(e.Width)), game.InputEncoder(state))
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer input.Destroy()
	policy, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.ActionSpace)))
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer policy.Destroy()
	value, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer value.Destroy()

	e.Lock()
	err = e.session.Run([]ort.Value{input}, []ort.Value{policy, value})
	e.Unlock()
	if err != nil {
		return nil, 0, errors.Wrap(err, "run session")
	}

	probs := make([]float32, e.ActionSpace)
	copy(probs, policy.GetData())
	softmax(probs)
	return probs, -value.GetData()[0], nil
}

func (e *OnnxEvaluator) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return errors.WithStack(err)
}

// softmax turns logits into probabilities in place.
func softmax(a []float32) {
	max := math32.Inf(-1)
	for _, v := range a {
		if v > max {
			max = v
		}
	}
	var sum float32
	for i, v := range a {
		a[i] = math32.Exp(v - max)
		sum += a[i]
	}
	for i := range a {
		a[i] /= sum
	}
}
