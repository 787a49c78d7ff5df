// Package manualdqn implements backend.Backend with an explicit
// Gorgonia computational graph: a single-head MLP scores all 4096
// actions in one forward pass, trained by minimizing the mean squared
// TD error against a frozen target network. Unlike the autodiff-free
// linear backend (backend/linearq), the backward pass here is
// Gorgonia's G.Grad, not hand-derived.
package manualdqn

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/backend"
	"github.com/AnthonyKot/chess-rl-sub010/initwfn"
	"github.com/AnthonyKot/chess-rl-sub010/network"
	"github.com/AnthonyKot/chess-rl-sub010/observation"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/solver"
)

// Config describes the network architecture, solver, and target-sync
// behaviour of a Backend.
type Config struct {
	HiddenSizes  []int
	Biases       []bool
	Activations  []*network.Activation
	InitGain     float64 // gain passed to the He-normal initializer
	LearningRate float64
	SolverKind   solver.Kind
	BatchSize    int
	Tau          float64 // 1.0 selects a hard sync; <1.0 selects Polyak averaging
}

// DefaultConfig returns a two hidden-layer architecture sized for the
// 839-feature observation and 4096-action space.
func DefaultConfig(batchSize int) Config {
	return Config{
		HiddenSizes:  []int{512, 256},
		Biases:       []bool{true, true},
		Activations:  []*network.Activation{network.ReLU(), network.ReLU()},
		InitGain:     1.0,
		LearningRate: 1e-4,
		SolverKind:   solver.Adam,
		BatchSize:    batchSize,
		Tau:          1.0,
	}
}

func (cfg Config) validate() error {
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("manualdqn: batchSize must be > 0")
	}
	if len(cfg.HiddenSizes) != len(cfg.Biases) || len(cfg.HiddenSizes) != len(cfg.Activations) {
		return fmt.Errorf("manualdqn: hiddenSizes, biases, and activations must have equal length")
	}
	if cfg.Tau <= 0 || cfg.Tau > 1 {
		return fmt.Errorf("manualdqn: tau must be in (0, 1]")
	}
	return nil
}

// Backend implements backend.Backend. It holds three live networks
// sharing no graph: scoreNet (batch 1, used by ScoreActions), trainNet
// (batch cfg.BatchSize, the graph that actually learns), and targetNet
// (batch cfg.BatchSize, the frozen bootstrap source). scoreNet and
// targetNet are kept in sync with trainNet's weights, never trained
// directly.
type Backend struct {
	cfg Config

	scoreNet network.NeuralNet
	scoreVM  G.VM

	trainNet network.NeuralNet
	trainVM  G.VM

	targetNet network.NeuralNet
	targetVM  G.VM

	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	selectedActions       *G.Node

	costValue     G.Value
	gradNormValue G.Value

	gsolver *solver.Solver
}

// New constructs a Backend with freshly initialized weights.
func New(cfg Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	init, err := initwfn.NewHeN(cfg.InitGain)
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not build initializer: %w", err)
	}

	g := G.NewGraph()
	scoreNet, err := network.NewActionValueMLP(observation.Length, 1, actioncodec.NumActions, g,
		append([]int(nil), cfg.HiddenSizes...), append([]bool(nil), cfg.Biases...),
		init.Fn(), append([]*network.Activation(nil), cfg.Activations...))
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not build scoring network: %w", err)
	}

	return build(cfg, scoreNet)
}

// build derives the train/target clones, loss graph, VMs, and solver
// from an already-constructed batch-1 scoreNet. Both New and Load
// funnel through this so the two code paths never diverge.
func build(cfg Config, scoreNet network.NeuralNet) (*Backend, error) {
	trainNet, err := scoreNet.CloneWithBatch(cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not clone training network: %w", err)
	}
	trainGraph := trainNet.Graph()

	targetNet, err := scoreNet.CloneWithBatch(cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not clone target network: %w", err)
	}
	targetGraph := targetNet.Graph()

	nextStateActionValues := G.NewMatrix(trainGraph, tensor.Float64,
		G.WithShape(cfg.BatchSize, actioncodec.NumActions),
		G.WithName("nextStateActionValues"))
	rewards := G.NewVector(trainGraph, tensor.Float64,
		G.WithShape(cfg.BatchSize), G.WithName("rewards"))
	discounts := G.NewVector(trainGraph, tensor.Float64,
		G.WithShape(cfg.BatchSize), G.WithName("discounts"))
	selectedActions := G.NewMatrix(trainGraph, tensor.Float64,
		G.WithShape(cfg.BatchSize, actioncodec.NumActions),
		G.WithName("selectedActions"))

	// r + gamma * max_a' Q_target(s', a'), with discounts already
	// carrying the gamma*(1-done) term so terminal transitions never
	// bootstrap.
	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	selectedValues := G.Must(G.HadamardProd(trainNet.Prediction()[0], selectedActions))
	selectedValues = G.Must(G.Sum(selectedValues, 1))

	td := G.Must(G.Sub(updateTarget, selectedValues))
	losses := G.Must(G.Square(td))
	cost := G.Must(G.Mean(losses))

	gradNodes, err := G.Grad(cost, trainNet.Learnables()...)
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not compute gradient: %w", err)
	}

	var gradNormSq *G.Node
	for _, gn := range gradNodes {
		sq := G.Must(G.Sum(G.Must(G.Square(gn))))
		if gradNormSq == nil {
			gradNormSq = sq
			continue
		}
		gradNormSq = G.Must(G.Add(gradNormSq, sq))
	}
	gradNorm := G.Must(G.Sqrt(gradNormSq))

	b := &Backend{
		cfg:                   cfg,
		scoreNet:              scoreNet,
		trainNet:              trainNet,
		targetNet:             targetNet,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		selectedActions:       selectedActions,
	}

	G.Read(cost, &b.costValue)
	G.Read(gradNorm, &b.gradNormValue)

	b.scoreVM = G.NewTapeMachine(scoreNet.Graph())
	b.trainVM = G.NewTapeMachine(trainGraph, G.BindDualValues(trainNet.Learnables()...))
	b.targetVM = G.NewTapeMachine(targetGraph)

	switch cfg.SolverKind {
	case solver.RMSProp:
		b.gsolver, err = solver.NewDefaultRMSProp(cfg.LearningRate, cfg.BatchSize)
	case solver.Vanilla:
		b.gsolver, err = solver.NewVanilla(cfg.LearningRate, cfg.BatchSize)
	default:
		b.gsolver, err = solver.NewDefaultAdam(cfg.LearningRate, cfg.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not build solver: %w", err)
	}

	if err := network.Set(b.targetNet, b.trainNet); err != nil {
		return nil, fmt.Errorf("manualdqn: could not initialize target network: %w", err)
	}
	if err := network.Set(b.scoreNet, b.trainNet); err != nil {
		return nil, fmt.Errorf("manualdqn: could not initialize scoring network: %w", err)
	}

	return b, nil
}

// Identifier names this backend for checkpoint metadata.
func (b *Backend) Identifier() string {
	return "manual-dqn"
}

// ScoreActions runs the batch-1 scoring network on observation and
// returns raw Q-values for every action id.
func (b *Backend) ScoreActions(observation *mat.VecDense) [actioncodec.NumActions]float64 {
	var out [actioncodec.NumActions]float64

	if err := b.scoreNet.SetInput(observation.RawVector().Data); err != nil {
		panic(fmt.Sprintf("manualdqn: could not set scoring input: %v", err))
	}
	b.scoreVM.RunAll()

	data := b.scoreNet.Output()[0].Data().([]float64)
	copy(out[:], data)

	b.scoreVM.Reset()
	return out
}

// ActionProbabilities returns a softmax distribution over the raw
// Q-values. Illegal actions are not masked here; the caller (the
// masked policy) is responsible for legality.
func (b *Backend) ActionProbabilities(observation *mat.VecDense) [actioncodec.NumActions]float64 {
	scores := b.ScoreActions(observation)
	return softmax(scores)
}

func softmax(scores [actioncodec.NumActions]float64) [actioncodec.NumActions]float64 {
	var out [actioncodec.NumActions]float64
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	total := 0.0
	for i, s := range scores {
		e := math.Exp(s - maxScore)
		out[i] = e
		total += e
	}
	if total <= 0 {
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// TrainOnBatch runs one gradient update. len(batch) must equal the
// backend's configured batch size, since the training graph's tensors
// have a fixed shape.
func (b *Backend) TrainOnBatch(batch []replay.Experience, gamma float64) (backend.TrainResult, error) {
	if len(batch) != b.cfg.BatchSize {
		return backend.TrainResult{}, fmt.Errorf(
			"manualdqn: batch size mismatch: want %d, have %d", b.cfg.BatchSize, len(batch))
	}

	n := b.cfg.BatchSize
	features := observation.Length
	numActions := actioncodec.NumActions

	states := make([]float64, 0, n*features)
	nextStates := make([]float64, 0, n*features)
	selected := make([]float64, n*numActions)
	rewards := make([]float64, n)
	discounts := make([]float64, n)

	for i, exp := range batch {
		states = append(states, exp.State.RawVector().Data...)
		nextStates = append(nextStates, exp.NextState.RawVector().Data...)
		selected[i*numActions+int(exp.Action)] = 1.0
		rewards[i] = exp.Reward
		if !exp.Done {
			discounts[i] = gamma
		}
	}

	if err := b.trainNet.SetInput(states); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set train input: %w", err)
	}
	if err := b.targetNet.SetInput(nextStates); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set target input: %w", err)
	}

	b.targetVM.RunAll()
	if err := G.Let(b.nextStateActionValues, b.targetNet.Output()[0]); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set bootstrap values: %w", err)
	}
	b.targetVM.Reset()

	selectedTensor := tensor.New(tensor.WithBacking(selected), tensor.WithShape(n, numActions))
	if err := G.Let(b.selectedActions, selectedTensor); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set selected actions: %w", err)
	}
	rewardTensor := tensor.New(tensor.WithBacking(rewards), tensor.WithShape(n))
	if err := G.Let(b.rewards, rewardTensor); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set rewards: %w", err)
	}
	discountTensor := tensor.New(tensor.WithBacking(discounts), tensor.WithShape(n))
	if err := G.Let(b.discounts, discountTensor); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not set discounts: %w", err)
	}

	b.trainVM.RunAll()

	qData := append([]float64(nil), b.trainNet.Output()[0].Data().([]float64)...)

	b.gsolver.Step(b.trainNet.Model())
	b.trainVM.Reset()

	if err := network.Set(b.scoreNet, b.trainNet); err != nil {
		return backend.TrainResult{}, fmt.Errorf("manualdqn: could not refresh scoring network: %w", err)
	}

	loss := b.costValue.Data().(float64)
	gradNorm := b.gradNormValue.Data().(float64)

	return backend.TrainResult{
		Loss:              loss,
		GradientNorm:      gradNorm,
		Entropy:           batchEntropy(qData, numActions),
		QStats:            qStatsOf(qData),
		BufferSampledSize: n,
	}, nil
}

// batchEntropy averages the softmax entropy of every row in a
// (rows x numActions) Q matrix.
func batchEntropy(data []float64, numActions int) float64 {
	rows := len(data) / numActions
	if rows == 0 {
		return 0
	}
	total := 0.0
	row := make([]float64, numActions)
	for r := 0; r < rows; r++ {
		copy(row, data[r*numActions:(r+1)*numActions])
		var scores [actioncodec.NumActions]float64
		copy(scores[:], row)
		probs := softmax(scores)
		h := 0.0
		for _, p := range probs {
			if p > 0 {
				h -= p * math.Log(p)
			}
		}
		total += h
	}
	return total / float64(rows)
}

func qStatsOf(data []float64) backend.QStats {
	if len(data) == 0 {
		return backend.QStats{}
	}
	sum, min, max := 0.0, math.Inf(1), math.Inf(-1)
	for _, v := range data {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(data))
	varSum := 0.0
	for _, v := range data {
		d := v - mean
		varSum += d * d
	}
	return backend.QStats{
		Mean:     mean,
		Min:      min,
		Max:      max,
		Variance: varSum / float64(len(data)),
	}
}

// SyncTargetNetwork copies (Tau==1) or Polyak-averages (Tau<1) the
// live training weights into the frozen target network.
func (b *Backend) SyncTargetNetwork() {
	if b.cfg.Tau >= 1.0 {
		if err := network.Set(b.targetNet, b.trainNet); err != nil {
			panic(fmt.Sprintf("manualdqn: could not sync target network: %v", err))
		}
		return
	}
	if err := network.Polyak(b.targetNet, b.trainNet, b.cfg.Tau); err != nil {
		panic(fmt.Sprintf("manualdqn: could not polyak-sync target network: %v", err))
	}
}

// Save gob-encodes the live training network to path.
func (b *Backend) Save(path string) error {
	raw, err := b.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("manualdqn: could not write checkpoint %q: %w", path, err)
	}
	return nil
}

// Load restores parameters from a checkpoint previously written by
// Save, rebuilding every derived graph (train/target clones, loss
// ops, VMs, solver) around the decoded weights.
func (b *Backend) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("manualdqn: could not read checkpoint %q: %w", path, err)
	}

	loaded, err := decodeScoreNet(raw, b.cfg)
	if err != nil {
		return err
	}

	rebuilt, err := build(b.cfg, loaded)
	if err != nil {
		return fmt.Errorf("manualdqn: could not rebuild backend from checkpoint: %w", err)
	}

	*b = *rebuilt
	return nil
}

func decodeScoreNet(raw []byte, cfg Config) (network.NeuralNet, error) {
	g := G.NewGraph()
	placeholder, err := network.NewActionValueMLP(observation.Length, 1, actioncodec.NumActions, g,
		append([]int(nil), cfg.HiddenSizes...), append([]bool(nil), cfg.Biases...),
		G.Zeroes(), append([]*network.Activation(nil), cfg.Activations...))
	if err != nil {
		return nil, fmt.Errorf("manualdqn: could not build decode placeholder: %w", err)
	}

	dec := gob.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(placeholder); err != nil {
		return nil, fmt.Errorf("manualdqn: could not decode network: %w", err)
	}
	return placeholder, nil
}

// encode gob-encodes the live training network.
func (b *Backend) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(b.trainNet); err != nil {
		return nil, fmt.Errorf("manualdqn: could not encode network: %w", err)
	}
	return buf.Bytes(), nil
}

// ParamHash returns the sha256 hex digest of the live parameters'
// gob-encoded form.
func (b *Backend) ParamHash() string {
	raw, err := b.encode()
	if err != nil {
		panic(fmt.Sprintf("manualdqn: could not hash parameters: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

var _ backend.Backend = (*Backend)(nil)
