// Package trainer implements the outer training cycle: self-play,
// replay-buffer maintenance, mini-batch updates, metrics/validation,
// and the checkpoint/evaluation cadence, generalizing the teacher's
// run-episodes-until-budget driver loop into the ten-step cycle
// procedure this training core specifies.
package trainer

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/exp/rand"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/backend"
	"github.com/AnthonyKot/chess-rl-sub010/baseline"
	"github.com/AnthonyKot/chess-rl-sub010/checkpoint"
	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/config"
	"github.com/AnthonyKot/chess-rl-sub010/diag"
	"github.com/AnthonyKot/chess-rl-sub010/evaluator"
	"github.com/AnthonyKot/chess-rl-sub010/metrics"
	"github.com/AnthonyKot/chess-rl-sub010/policy"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/selfplay"
	"github.com/AnthonyKot/chess-rl-sub010/validator"
)

// CheckpointPathFunc names the artifact path for a given cycle and
// lifecycle kind ("regular", "best", "final"). Naming is the caller's
// responsibility; the Trainer never invents paths itself.
type CheckpointPathFunc func(cycle int, kind string) string

// Options constructs a Trainer. Backend is the single live,
// mutable set of parameters the Trainer trains; NewBackend
// constructs a fresh, independent instance of the same kind, used to
// hold frozen opponent snapshots (may be nil if OpponentStrategy never
// needs one).
type Options struct {
	Config            config.TrainingConfig
	Backend           backend.Backend
	NewBackend        func() (backend.Backend, error)
	EnvFactory        func() chessenv.Environment
	Sink              diag.Sink
	CheckpointPath    CheckpointPathFunc
	ConfigFingerprint string
}

// Trainer owns the self-play driver, replay buffer, metrics tracker,
// validator, checkpoint manager, and evaluator for one training run.
// It is the single writer of the live Backend: self-play workers only
// ever see read-only scoring snapshots.
type Trainer struct {
	cfg               config.TrainingConfig
	live              backend.Backend
	newBackend        func() (backend.Backend, error)
	envFactory        func() chessenv.Environment
	checkpointPath    CheckpointPathFunc
	configFingerprint string
	sink              diag.Sink

	driver         *selfplay.Driver
	buffer         *replay.Buffer
	mainPolicy     *policy.MaskedPolicy
	opponentPolicy *policy.MaskedPolicy
	rng            *rand.Rand
	tracker        *metrics.Tracker
	validator      *validator.Validator
	checkpoints    *checkpoint.Manager
	eval           *evaluator.Evaluator

	baselineOpponent *baseline.Scorer
	snapshot         backend.Backend
	checkpointPool   []string

	cycle         int
	updateCounter int
}

// New validates cfg and wires up every component the cycle procedure
// depends on.
func New(opts Options) (*Trainer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("trainer: Backend must not be nil")
	}
	if opts.EnvFactory == nil {
		return nil, fmt.Errorf("trainer: EnvFactory must not be nil")
	}
	if opts.CheckpointPath == nil {
		return nil, fmt.Errorf("trainer: CheckpointPath must not be nil")
	}
	sink := opts.Sink
	if sink == nil {
		sink = diag.Discard
	}

	buf, err := replay.New(opts.Config.BufferCapacity)
	if err != nil {
		return nil, err
	}

	driver, err := selfplay.NewDriver(opts.EnvFactory, opts.Config.WorkerCount, sink)
	if err != nil {
		return nil, err
	}

	seed := opts.Config.Seed
	mainPolicy := policy.New(
		opts.Config.ExplorationStrategy,
		policy.Schedule{Start: opts.Config.EpsilonStart, End: opts.Config.EpsilonEnd, Steps: opts.Config.EpsilonDecaySteps},
		policy.Schedule{Start: opts.Config.TemperatureStart, End: opts.Config.TemperatureEnd, Steps: opts.Config.TemperatureDecaySteps},
		seed,
	)
	opponentPolicy := policy.New(config.Greedy, policy.Schedule{}, policy.Schedule{}, seed+1)

	tracker, err := metrics.NewTracker(opts.Config.TrendWindow)
	if err != nil {
		return nil, err
	}

	eval, err := evaluator.New(opts.EnvFactory, evaluator.Config{Games: opts.Config.EvaluationGames})
	if err != nil {
		return nil, err
	}

	return &Trainer{
		cfg:               opts.Config,
		live:              opts.Backend,
		newBackend:        opts.NewBackend,
		envFactory:        opts.EnvFactory,
		checkpointPath:    opts.CheckpointPath,
		configFingerprint: opts.ConfigFingerprint,
		sink:              sink,
		driver:            driver,
		buffer:            buf,
		mainPolicy:        mainPolicy,
		opponentPolicy:    opponentPolicy,
		rng:               rand.New(rand.NewSource(uint64(seed))),
		tracker:           tracker,
		validator:         validator.New(sink, opts.Config.TrendWindow),
		checkpoints:       checkpoint.NewManager(sink, 0),
		eval:              eval,
		baselineOpponent:  baseline.New(float64(seed)),
	}, nil
}

// Run executes cycles until MaxCycles is reached or ctx is canceled,
// then writes a final checkpoint and returns. A canceled ctx never
// produces an error: cancellation is cooperative, per the
// concurrency model.
func (t *Trainer) Run(ctx context.Context) error {
	for t.cycle < t.cfg.MaxCycles {
		if ctx.Err() != nil {
			break
		}
		if err := t.runCycle(ctx); err != nil {
			return err
		}
		t.cycle++
	}
	return t.finish()
}

// runCycle executes the ten-step cycle procedure once.
func (t *Trainer) runCycle(ctx context.Context) error {
	start := time.Now()

	opponent, err := t.selectOpponent()
	if err != nil {
		return fmt.Errorf("trainer: could not select an opponent for cycle %d: %w", t.cycle, err)
	}

	makePlayers := func(i int) (white, black selfplay.Player) {
		main := selfplay.Player{Scorer: t.live, Policy: t.mainPolicy}
		opp := selfplay.Player{Scorer: opponent, Policy: t.opponentPolicy}
		if i%2 == 0 {
			return main, opp
		}
		return opp, main
	}

	cr, err := t.driver.RunCycle(ctx, t.cfg.GamesPerCycle, makePlayers)
	if err != nil {
		return fmt.Errorf("trainer: self-play failed in cycle %d: %w", t.cycle, err)
	}

	for _, exp := range cr.Experiences {
		t.buffer.Push(exp)
	}
	if t.buffer.Utilization() >= 0.9 {
		t.buffer.Cleanup(t.cfg.CleanupRatio)
	}

	var lossSum, gradSum, entropySum float64
	var qStatsSamples []backend.QStats
	batchesProcessed := 0

	if !cr.Failed {
		for bi := 0; bi < t.cfg.BatchesPerCycle; bi++ {
			if ctx.Err() != nil {
				break
			}
			batch, err := t.buffer.Sample(t.cfg.BatchSize, t.rng)
			if err != nil {
				t.sink.Warnf("trainer: cycle %d: could not sample a batch: %v", t.cycle, err)
				break
			}
			result, err := t.live.TrainOnBatch(batch, t.cfg.Gamma)
			if err != nil || !result.Finite() {
				t.sink.Issue(diag.Issue{
					Kind:     "NumericalInstability",
					Severity: diag.Critical,
					Message:  fmt.Sprintf("cycle %d batch %d rejected (non-finite loss or gradient norm)", t.cycle, bi),
				})
				continue
			}

			lossSum += result.Loss
			gradSum += result.GradientNorm
			entropySum += result.Entropy
			qStatsSamples = append(qStatsSamples, result.QStats)
			batchesProcessed++

			t.updateCounter++
			if t.updateCounter%t.cfg.TargetSyncInterval == 0 {
				t.live.SyncTargetNetwork()
			}
		}
	}

	cm := t.computeMetrics(cr, batchesProcessed, lossSum, gradSum, entropySum, qStatsSamples, time.Since(start))
	trend := t.tracker.Update(cm)
	t.validator.ValidateCycle(cm, trend)

	if t.cfg.CheckpointInterval > 0 && (t.cycle+1)%t.cfg.CheckpointInterval == 0 {
		path := t.checkpointPath(t.cycle, "regular")
		if err := t.checkpoints.SaveRegular(t.live, t.metadata(0), path); err != nil {
			t.sink.Warnf("trainer: cycle %d: regular checkpoint failed: %v", t.cycle, err)
		} else {
			t.checkpointPool = append(t.checkpointPool, path)
		}
	}

	if t.cfg.EvaluationInterval > 0 && (t.cycle+1)%t.cfg.EvaluationInterval == 0 {
		res, err := t.eval.Run(ctx, t.live, t.baselineOpponent)
		if err != nil {
			t.sink.Warnf("trainer: cycle %d: evaluation failed: %v", t.cycle, err)
		} else {
			path := t.checkpointPath(t.cycle, "best")
			promoted, err := t.checkpoints.PromoteBest(t.live, t.metadata(res.WinRate), path)
			if err != nil {
				t.sink.Warnf("trainer: cycle %d: best-checkpoint promotion failed: %v", t.cycle, err)
			} else if promoted {
				t.checkpointPool = append(t.checkpointPool, path)
				t.sink.Infof("trainer: cycle %d promoted new best checkpoint (winRate=%.4f)", t.cycle, res.WinRate)
			}
		}
	}

	return nil
}

// finish writes the terminal checkpoint, distinct from the regular
// and best artifacts, and is called whether Run stops because
// MaxCycles was reached or because ctx was canceled.
func (t *Trainer) finish() error {
	path := t.checkpointPath(t.cycle, "final")
	return t.checkpoints.SaveFinal(t.live, t.metadata(0), path)
}

func (t *Trainer) metadata(evalScore float64) checkpoint.Metadata {
	return checkpoint.Metadata{
		BackendID:          t.live.Identifier(),
		ParamHash:          t.live.ParamHash(),
		Cycle:              t.cycle,
		TimestampUTCMillis: time.Now().UnixMilli(),
		EvalScore:          evalScore,
		ConfigFingerprint:  t.configFingerprint,
	}
}

// selectOpponent implements step 1 of the cycle procedure.
func (t *Trainer) selectOpponent() (selfplay.Scorer, error) {
	switch t.cfg.OpponentStrategy {
	case config.SelfCurrent:
		return t.live, nil

	case config.FrozenSnapshotEveryKCycles:
		if t.snapshot == nil || t.cycle%t.cfg.OpponentSnapshotInterval == 0 {
			if err := t.refreshSnapshot(); err != nil {
				return nil, err
			}
		}
		return t.snapshot, nil

	case config.BaselineHeuristic:
		return t.baselineOpponent, nil

	case config.CheckpointPool:
		if len(t.checkpointPool) == 0 {
			return t.live, nil
		}
		path := t.checkpointPool[t.rng.Intn(len(t.checkpointPool))]
		if t.snapshot == nil {
			if t.newBackend == nil {
				return nil, fmt.Errorf("trainer: opponentStrategy checkpoint-pool requires a NewBackend factory")
			}
			nb, err := t.newBackend()
			if err != nil {
				return nil, err
			}
			t.snapshot = nb
		}
		if err := t.snapshot.Load(path); err != nil {
			return nil, err
		}
		return t.snapshot, nil

	default:
		return t.live, nil
	}
}

// refreshSnapshot copies the live backend's current parameters into a
// frozen snapshot instance via a temporary Save/Load round trip, since
// the Backend contract exposes no in-memory clone operation.
func (t *Trainer) refreshSnapshot() error {
	if t.newBackend == nil {
		return fmt.Errorf("trainer: opponentStrategy frozen-snapshot requires a NewBackend factory")
	}
	if t.snapshot == nil {
		nb, err := t.newBackend()
		if err != nil {
			return err
		}
		t.snapshot = nb
	}

	tmp, err := os.CreateTemp("", "snapshot-*.ckpt")
	if err != nil {
		return fmt.Errorf("trainer: could not create snapshot temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := t.live.Save(path); err != nil {
		return fmt.Errorf("trainer: could not snapshot live parameters: %w", err)
	}
	return t.snapshot.Load(path)
}

// computeMetrics implements step 5 of the cycle procedure.
func (t *Trainer) computeMetrics(cr selfplay.CycleResult, batchesProcessed int,
	lossSum, gradSum, entropySum float64, qStatsSamples []backend.QStats, duration time.Duration) metrics.CycleMetrics {

	wins, draws, losses, totalPly, stepLimitCount := 0, 0, 0, 0, 0
	for _, gr := range cr.Games {
		totalPly += gr.Result.PlyCount
		mainIsWhite := gr.Index%2 == 0
		switch {
		case mainIsWhite && gr.Result.Outcome == chessenv.WhiteWins,
			!mainIsWhite && gr.Result.Outcome == chessenv.BlackWins:
			wins++
		case mainIsWhite && gr.Result.Outcome == chessenv.BlackWins,
			!mainIsWhite && gr.Result.Outcome == chessenv.WhiteWins:
			losses++
		default:
			draws++
		}
		if gr.Result.TerminationReason == chessenv.StepLimit {
			stepLimitCount++
		}
	}

	games := len(cr.Games)
	var winRate, drawRate, lossRate, avgPly, stepLimitRate float64
	if games > 0 {
		winRate = float64(wins) / float64(games)
		drawRate = float64(draws) / float64(games)
		lossRate = float64(losses) / float64(games)
		avgPly = float64(totalPly) / float64(games)
		stepLimitRate = float64(stepLimitCount) / float64(games)
	}

	seenActions := make(map[actioncodec.ActionID]bool)
	rewardSum := 0.0
	for _, exp := range cr.Experiences {
		seenActions[exp.Action] = true
		rewardSum += exp.Reward
	}
	totalActions := len(cr.Experiences)
	uniqueActions := len(seenActions)
	var diversity, avgReward float64
	if totalActions > 0 {
		diversity = float64(uniqueActions) / float64(totalActions)
		avgReward = rewardSum / float64(totalActions)
	}

	var loss, gradNorm, entropy float64
	var qAgg backend.QStats
	if batchesProcessed > 0 {
		loss = lossSum / float64(batchesProcessed)
		gradNorm = gradSum / float64(batchesProcessed)
		entropy = entropySum / float64(batchesProcessed)
		qAgg = averageQStats(qStatsSamples)
	}

	return metrics.CycleMetrics{
		Cycle:              t.cycle,
		Games:              games,
		WinRate:            winRate,
		DrawRate:           drawRate,
		LossRate:           lossRate,
		AvgPly:             avgPly,
		StepLimitRate:      stepLimitRate,
		BufferUtilization:  t.buffer.Utilization(),
		BatchesProcessed:   batchesProcessed,
		Loss:               loss,
		GradientNorm:       gradNorm,
		Entropy:            entropy,
		QStats:             qAgg,
		Reward:             avgReward,
		TotalActions:       totalActions,
		UniqueActions:      uniqueActions,
		ActionDiversity:    diversity,
		IllegalActionCount: t.mainPolicy.IllegalActionCount(),
		CycleDuration:      duration,
		Failed:             cr.Failed,
	}
}

func averageQStats(samples []backend.QStats) backend.QStats {
	if len(samples) == 0 {
		return backend.QStats{}
	}
	var meanSum, varSum float64
	min, max := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		meanSum += s.Mean
		varSum += s.Variance
		if s.Min < min {
			min = s.Min
		}
		if s.Max > max {
			max = s.Max
		}
	}
	n := float64(len(samples))
	return backend.QStats{Mean: meanSum / n, Variance: varSum / n, Min: min, Max: max}
}
