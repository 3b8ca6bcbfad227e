package dual

import (
	"encoding/gob"
	"io"
	"os"
	"sync"

	"github.com/alphafour/game"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dual is a forward-only policy/value network with one linear layer per head:
//
//	policy = softmax(x·Wp + bp)
//	value  = tanh(x·Wv + bv)
//
// The value head estimates the outcome for the player to move in the input position.
type Dual struct {
	Config

	wp, bp, wv, bv *tensor.Dense

	sync.Mutex
	g             *G.ExprGraph
	x             *G.Node
	policy, value *G.Node
	vm            G.VM
}

// New creates a new Dual. Call Init or Load before using it.
func New(conf Config) *Dual {
	return &Dual{Config: conf}
}

// Init initializes the weights with Glorot normal samples and builds the graph.
func (d *Dual) Init() error {
	if !d.Config.IsValid() {
		return errors.Errorf("invalid network config %+v", d.Config)
	}
	in, actions := d.InputSize(), d.ActionSpace
	glorot := G.GlorotN(1.0)
	d.wp = tensor.New(tensor.WithShape(in, actions), tensor.WithBacking(glorot(tensor.Float32, in, actions)))
	d.bp = tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(1, actions))
	d.wv = tensor.New(tensor.WithShape(in, 1), tensor.WithBacking(glorot(tensor.Float32, in, 1)))
	d.bv = tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(1, 1))
	return d.build()
}

func (d *Dual) build() (err error) {
	if d.vm != nil {
		d.vm.Close()
	}
	g := G.NewGraph()
	in, actions := d.InputSize(), d.ActionSpace

	d.x = G.NewMatrix(g, tensor.Float32, G.WithShape(1, in), G.WithName("x"), G.WithInit(G.Zeroes()))
	wp := G.NewMatrix(g, tensor.Float32, G.WithShape(in, actions), G.WithName("wp"), G.WithValue(d.wp))
	bp := G.NewMatrix(g, tensor.Float32, G.WithShape(1, actions), G.WithName("bp"), G.WithValue(d.bp))
	wv := G.NewMatrix(g, tensor.Float32, G.WithShape(in, 1), G.WithName("wv"), G.WithValue(d.wv))
	bv := G.NewMatrix(g, tensor.Float32, G.WithShape(1, 1), G.WithName("bv"), G.WithValue(d.bv))

	var logits, v *G.Node
	if logits, err = G.Mul(d.x, wp); err != nil {
		return errors.Wrap(err, "policy head")
	}
	if logits, err = G.Add(logits, bp); err != nil {
		return errors.Wrap(err, "policy bias")
	}
	if d.policy, err = G.SoftMax(logits); err != nil {
		return errors.Wrap(err, "policy softmax")
	}
	if v, err = G.Mul(d.x, wv); err != nil {
		return errors.Wrap(err, "value head")
	}
	if v, err = G.Add(v, bv); err != nil {
		return errors.Wrap(err, "value bias")
	}
	if d.value, err = G.Tanh(v); err != nil {
		return errors.Wrap(err, "value tanh")
	}

	d.g = g
	d.vm = G.NewTapeMachine(g)
	return nil
}

// Infer runs the network on state. The returned value is from the point of view of the player who
// made the last move, which is what the search backs up.
func (d *Dual) Infer(state game.State) (policy []float32, value float32, err error) {
	if !d.fits(state) {
		return nil, 0, errors.Errorf("network built for %dx%d, got %dx%d", d.Height, d.Width, state.Rows(), state.Cols())
	}
	input := tensor.New(tensor.WithShape(1, d.InputSize()), tensor.WithBacking(game.InputEncoder(state)))

	d.Lock()
	defer d.Unlock()
	if d.vm == nil {
		return nil, 0, errors.New("network is not initialized")
	}
	defer d.vm.Reset()
	if err = G.Let(d.x, input); err != nil {
		return nil, 0, errors.WithStack(err)
	}
	if err = d.vm.RunAll(); err != nil {
		return nil, 0, errors.WithStack(err)
	}

	policy = make([]float32, d.ActionSpace)
	copy(policy, d.policy.Value().Data().([]float32))
	value = -d.value.Value().Data().([]float32)[0]
	return policy, value, nil
}

// Save writes the config and the weights with gob.
func (d *Dual) Save(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(d.Config); err != nil {
		return errors.WithStack(err)
	}
	for _, t := range []*tensor.Dense{d.wp, d.bp, d.wv, d.bv} {
		if t == nil {
			return errors.New("network is not initialized")
		}
		if err := enc.Encode(t); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Load reads what Save wrote and rebuilds the graph.
func (d *Dual) Load(r io.Reader) error {
	dec := gob.NewDecoder(r)
	var conf Config
	if err := dec.Decode(&conf); err != nil {
		return errors.WithStack(err)
	}
	weights := make([]*tensor.Dense, 4)
	for i := range weights {
		weights[i] = new(tensor.Dense)
		if err := dec.Decode(weights[i]); err != nil {
			return errors.WithStack(err)
		}
	}
	if weights[0].Shape()[0] != conf.InputSize() || weights[0].Shape()[1] != conf.ActionSpace {
		return errors.Errorf("policy weights have shape %v, config says %dx%d", weights[0].Shape(), conf.InputSize(), conf.ActionSpace)
	}
	d.Lock()
	defer d.Unlock()
	d.Config = conf
	d.wp, d.bp, d.wv, d.bv = weights[0], weights[1], weights[2], weights[3]
	return d.build()
}

// SaveFile saves the network into filename.
func (d *Dual) SaveFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = d.Save(f); err != nil {
		f.Close()
		return err
	}
	return errors.WithStack(f.Close())
}

// LoadFile loads a network saved with SaveFile.
func LoadFile(filename string) (*Dual, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	d := new(Dual)
	if err = d.Load(f); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dual) Close() error {
	d.Lock()
	defer d.Unlock()
	if d.vm == nil {
		return nil
	}
	err := d.vm.Close()
	d.vm = nil
	return errors.WithStack(err)
}

// Evaluator is a closable evaluator.
type Evaluator interface {
	Infer(state game.State) (policy []float32, value float32, err error)
	io.Closer
}

// Open picks an evaluator: the ONNX model when onnxModel is set, the saved network when model
// exists, and a freshly initialized network otherwise.
func Open(conf Config, model, onnxModel string) (Evaluator, error) {
	if onnxModel != "" {
		e, err := NewOnnxEvaluator(onnxModel, conf)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	if model != "" {
		_, err := os.Stat(model)
		switch {
		case err == nil:
			d, err := LoadFile(model)
			if err != nil {
				return nil, err
			}
			return d, nil
		case !os.IsNotExist(err):
			return nil, errors.WithStack(err)
		}
	}
	d := New(conf)
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}
