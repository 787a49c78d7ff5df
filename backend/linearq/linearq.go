// Package linearq implements backend.Backend with a single linear
// layer (one weight row per action, dotted with the observation
// vector), updated by the classic Q-learning delta rule rather than
// Gorgonia autodiff. It is the fast, low-capacity backend used for
// smoke tests and as a baseline opponent.
package linearq

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/backend"
	"github.com/AnthonyKot/chess-rl-sub010/observation"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/utils/matutils/initializers/weights"
)

// Config configures a Backend.
type Config struct {
	LearningRate float64
	Init         weights.Initializer // nil selects weights.Zero
	Tau          float64             // 1.0 selects a hard sync; <1.0 selects Polyak averaging
}

func (cfg Config) validate() error {
	if cfg.LearningRate <= 0 {
		return fmt.Errorf("linearq: learningRate must be > 0")
	}
	if cfg.Tau <= 0 || cfg.Tau > 1 {
		return fmt.Errorf("linearq: tau must be in (0, 1]")
	}
	return nil
}

// Backend implements backend.Backend. weights and target are both
// (actioncodec.NumActions x observation.Length) dense matrices; target
// bootstraps TD targets and is refreshed only by SyncTargetNetwork.
type Backend struct {
	cfg    Config
	live   *mat.Dense
	target *mat.Dense
}

// New constructs a Backend with weights set by cfg.Init (or all zero
// if cfg.Init is nil).
func New(cfg Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	live := mat.NewDense(actioncodec.NumActions, observation.Length, nil)
	init := cfg.Init
	if init == nil {
		init = weights.Zero{}
	}
	init.Initialize(live)

	target := mat.NewDense(actioncodec.NumActions, observation.Length, nil)
	target.Copy(live)

	return &Backend{cfg: cfg, live: live, target: target}, nil
}

// Identifier names this backend for checkpoint metadata.
func (b *Backend) Identifier() string {
	return "linear-q"
}

// ScoreActions returns Q(s, a) = weights[a] . observation for every
// action id.
func (b *Backend) ScoreActions(observation *mat.VecDense) [actioncodec.NumActions]float64 {
	var out [actioncodec.NumActions]float64
	for a := 0; a < actioncodec.NumActions; a++ {
		out[a] = mat.Dot(b.live.RowView(a), observation)
	}
	return out
}

// ActionProbabilities returns a softmax distribution over the raw
// Q-values; illegal entries are not masked here.
func (b *Backend) ActionProbabilities(observation *mat.VecDense) [actioncodec.NumActions]float64 {
	return softmax(b.ScoreActions(observation))
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

// TrainOnBatch runs one mini-batch Q-learning delta-rule update:
// for every transition (s, a, r, s', done), the row weights[a] is
// nudged toward r + gamma*(1-done)*max_a' target[a'].s' by
// learningRate * error, averaged across the batch.
func (b *Backend) TrainOnBatch(batch []replay.Experience, gamma float64) (backend.TrainResult, error) {
	if len(batch) == 0 {
		return backend.TrainResult{}, fmt.Errorf("linearq: batch must be non-empty")
	}

	numActions, features := b.live.Dims()
	grad := mat.NewDense(numActions, features, nil)

	nextActionValues := mat.NewVecDense(numActions, nil)
	errors := make([]float64, len(batch))
	qValues := make([]float64, 0, len(batch))

	for i, exp := range batch {
		nextActionValues.MulVec(b.target, exp.NextState)
		maxNext := mat.Max(nextActionValues)
		if exp.Done {
			maxNext = 0
		}

		current := mat.Dot(b.live.RowView(int(exp.Action)), exp.State)
		qValues = append(qValues, current)

		discount := gamma
		if exp.Done {
			discount = 0
		}
		target := exp.Reward + discount*maxNext
		errors[i] = target - current

		row := grad.RowView(int(exp.Action)).(*mat.VecDense)
		row.AddScaledVec(row, errors[i], exp.State)
	}

	n := float64(len(batch))
	scale := b.cfg.LearningRate / n
	grad.Scale(scale, grad)
	b.live.Add(b.live, grad)

	loss, gradNorm := 0.0, 0.0
	for _, e := range errors {
		loss += e * e
	}
	loss /= n
	gradNorm = mat.Norm(grad, 2)

	return backend.TrainResult{
		Loss:              loss,
		GradientNorm:      gradNorm,
		Entropy:           0,
		QStats:            qStatsOf(qValues),
		BufferSampledSize: len(batch),
	}, nil
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
// live weights into the frozen target matrix.
func (b *Backend) SyncTargetNetwork() {
	if b.cfg.Tau >= 1.0 {
		b.target.Copy(b.live)
		return
	}
	b.target.Scale(1-b.cfg.Tau, b.target)
	var scaledLive mat.Dense
	scaledLive.Scale(b.cfg.Tau, b.live)
	b.target.Add(b.target, &scaledLive)
}

// checkpoint is the gob-serializable form of a Backend's weights.
type checkpoint struct {
	NumActions int
	Features   int
	Live       []float64
	Target     []float64
}

// Save gob-encodes the live and target weight matrices to path.
func (b *Backend) Save(path string) error {
	raw, err := b.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("linearq: could not write checkpoint %q: %w", path, err)
	}
	return nil
}

// Load restores weights from a checkpoint previously written by Save.
func (b *Backend) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("linearq: could not read checkpoint %q: %w", path, err)
	}

	var cp checkpoint
	dec := gob.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cp); err != nil {
		return fmt.Errorf("linearq: could not decode checkpoint: %w", err)
	}
	if cp.NumActions != actioncodec.NumActions || cp.Features != observation.Length {
		return fmt.Errorf("linearq: checkpoint shape mismatch: want (%d, %d), have (%d, %d)",
			actioncodec.NumActions, observation.Length, cp.NumActions, cp.Features)
	}

	b.live = mat.NewDense(cp.NumActions, cp.Features, cp.Live)
	b.target = mat.NewDense(cp.NumActions, cp.Features, cp.Target)
	return nil
}

func (b *Backend) encode() ([]byte, error) {
	numActions, features := b.live.Dims()
	cp := checkpoint{
		NumActions: numActions,
		Features:   features,
		Live:       append([]float64(nil), b.live.RawMatrix().Data...),
		Target:     append([]float64(nil), b.target.RawMatrix().Data...),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return nil, fmt.Errorf("linearq: could not encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

// ParamHash returns the sha256 hex digest of the live weights' gob-
// encoded form.
func (b *Backend) ParamHash() string {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b.live.RawMatrix().Data); err != nil {
		panic(fmt.Sprintf("linearq: could not hash parameters: %v", err))
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

var _ backend.Backend = (*Backend)(nil)
