package training

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ZanzyTHEbar/hred-go/hred/db"

	"github.com/rs/zerolog"
)

// StopReason tells why Run returned.
type StopReason string

const (
	StopLoopIters     StopReason = "loop_iters"
	StopTimeLimit     StopReason = "time_stop"
	StopPatience      StopReason = "patience"
	StopDataExhausted StopReason = "data_exhausted"
)

// Summary describes a finished run.
type Summary struct {
	RunID         string
	Steps         int
	ValidRounds   int
	Patience      int
	BestValidCost float64
	Reason        StopReason
}

// Trainer runs the training loop for one session.
type Trainer struct {
	sess  *Session
	model Model
	train Iterator
	valid Iterator
	opts  Options
	log   zerolog.Logger
	clock func() time.Time
}

// NewTrainer loads the session's model checkpoint into model when resuming.
// valid may be nil, which disables validation and with it early stopping.
func NewTrainer(sess *Session, model Model, train, valid Iterator, opts Options) (*Trainer, error) {
	if sess == nil || model == nil || train == nil {
		return nil, fmt.Errorf("invalid input: session, model and training data are required")
	}
	t := &Trainer{
		sess:  sess,
		model: model,
		train: train,
		valid: valid,
		opts:  opts,
		log:   opts.Logger.With().Str("run", sess.State.RunID).Logger(),
		clock: opts.Clock,
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if sess.ModelPath != "" {
		start := t.clock()
		t.log.Debug().Str("path", sess.ModelPath).Strs("ignore", sess.Ignore).Msg("Loading the model")
		if err := model.Load(sess.ModelPath, sess.Ignore); err != nil {
			return nil, fmt.Errorf("failed to load model %s: %w", sess.ModelPath, err)
		}
		t.log.Debug().Dur("took", t.clock().Sub(start)).Msg("Model loaded")
	}
	return t, nil
}

// accumulator sums training costs between validation rounds.
type accumulator struct {
	cost, kl, posterior float64
	preds, dialogues    int
	prevCost            float64
	prevPreds           int
}

func (a *accumulator) add(r Result, b *Batch) {
	a.cost += r.Cost
	a.kl += r.KLDivergence
	a.posterior += r.PosteriorMeanVariance
	a.preds += b.NumPreds
	a.dialogues += b.NumDialogues
}

// window returns the per-prediction cost since the previous call.
func (a *accumulator) window() float64 {
	cur := ratio(a.cost, a.preds)
	if a.prevPreds >= 1 && a.preds != a.prevPreds {
		cur = (a.cost - a.prevCost) / float64(a.preds-a.prevPreds)
	}
	a.prevCost, a.prevPreds = a.cost, a.preds
	return cur
}

func ratio(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func invalid(x float64) bool { return math.IsNaN(x) || math.IsInf(x, 0) }

// Run trains until loopIters steps, the time limit, patience running out or
// the training data ending. Checkpoint writes never observe ctx, so an
// interrupt only takes effect between batches.
func (t *Trainer) Run(ctx context.Context) (*Summary, error) {
	st := t.sess.State
	if err := t.train.Start(); err != nil {
		return nil, fmt.Errorf("failed to start training data: %w", err)
	}

	sum := &Summary{RunID: st.RunID, Patience: st.Patience, BestValidCost: math.Inf(1)}
	if best, ok := t.sess.Timings.Best(MeasureValidCost); ok {
		sum.BestValidCost = best
	}
	var acc accumulator
	startValidation := false
	start := t.clock()
	timeLimit := time.Duration(st.TimeStopMinutes * float64(time.Minute))

	for {
		switch {
		case sum.Steps >= st.LoopIters:
			sum.Reason = StopLoopIters
		case t.clock().Sub(start) >= timeLimit:
			sum.Reason = StopTimeLimit
		case sum.Patience < 0:
			sum.Reason = StopPatience
		}
		if sum.Reason != "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if st.SampleFreq > 0 && sum.Steps%st.SampleFreq == 0 {
			t.logParamNorms()
		}

		batch, err := t.train.Next(ctx)
		if err != nil {
			return sum, fmt.Errorf("failed to read training batch: %w", err)
		}
		if batch == nil {
			t.log.Debug().Msg("Training data exhausted")
			sum.Reason = StopDataExhausted
			break
		}

		res, err := t.model.TrainBatch(batch)
		if err != nil {
			return sum, fmt.Errorf("training step %d failed: %w", sum.Steps, err)
		}
		if invalid(res.Cost) {
			t.log.Warn().Int("step", sum.Steps).Msg("Got NaN cost, skipping batch")
			continue
		}
		acc.add(res, batch)

		if sum.Steps%st.TrainFreq == 0 {
			t.logProgress(sum.Steps, start, &acc)
		}

		if t.valid != nil && sum.Steps%st.ValidFreq == 0 && sum.Steps > 1 {
			startValidation = true
		}
		// validate only once no dialogue is carried over between batches
		if startValidation && batch.EndOfDialogue {
			startValidation = false
			if err := t.validate(ctx, sum, &acc); err != nil {
				return sum, err
			}
		}
		sum.Steps++
	}

	t.log.Info().
		Int("steps", sum.Steps).
		Int("valid_rounds", sum.ValidRounds).
		Str("reason", string(sum.Reason)).
		Msg("Training finished")
	return sum, nil
}

func (t *Trainer) logParamNorms() {
	pn, ok := t.model.(ParamNormer)
	if !ok {
		return
	}
	ev := t.log.Debug()
	for name, norm := range pn.ParamNorms() {
		ev = ev.Float64(name, norm)
	}
	ev.Msg("Parameter norms")
}

func (t *Trainer) logProgress(step int, start time.Time, acc *accumulator) {
	accCost := ratio(acc.cost, acc.preds)
	curCost := acc.window()
	t.log.Info().
		Int("step", step).
		Dur("elapsed", t.clock().Sub(start)).
		Float64("acc_cost", accCost).
		Float64("acc_word_perplexity", math.Exp(accCost)).
		Float64("cur_cost", curCost).
		Float64("cur_word_perplexity", math.Exp(curCost)).
		Float64("acc_mean_kl_divergence_cost", ratio(acc.kl, acc.preds)).
		Float64("acc_mean_posterior_variance", ratio(acc.posterior, acc.dialogues)).
		Msg("Training progress")
}

func (t *Trainer) validate(ctx context.Context, sum *Summary, acc *accumulator) error {
	st := t.sess.State
	if err := t.valid.Start(); err != nil {
		return fmt.Errorf("failed to start validation data: %w", err)
	}
	t.log.Debug().Int("step", sum.Steps).Msg("Validation start")

	var cost, kl, posterior float64
	var preds, dialogues int
	for {
		batch, err := t.valid.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to read validation batch: %w", err)
		}
		if batch == nil {
			break
		}
		res, err := t.model.EvalBatch(batch)
		if err != nil {
			return fmt.Errorf("validation at step %d failed: %w", sum.Steps, err)
		}
		if invalid(res.Cost) {
			continue
		}
		cost += res.Cost
		kl += res.KLDivergence
		posterior += res.PosteriorMeanVariance
		preds += batch.NumPreds
		dialogues += batch.NumDialogues
	}
	t.log.Debug().Msg("Validation end")
	if preds == 0 {
		return ErrNoValidationPredictions
	}

	validCost := cost / float64(preds)
	validKL := kl / float64(preds)
	validPosterior := ratio(posterior, dialogues)

	timings := t.sess.Timings
	best, hasBest := timings.Best(MeasureValidCost)
	last, _ := timings.Last(MeasureValidCost)
	isBest := !hasBest || validCost < best || (t.sess.SaveOnFirstValid && sum.ValidRounds == 0)

	timings[MeasureTrainCost] = append(timings[MeasureTrainCost], ratio(acc.cost, acc.preds))
	timings[MeasureTrainKLDivergenceCost] = append(timings[MeasureTrainKLDivergenceCost], ratio(acc.kl, acc.preds))
	timings[MeasureTrainPosteriorMeanVariance] = append(timings[MeasureTrainPosteriorMeanVariance], ratio(acc.posterior, acc.dialogues))
	timings[MeasureValidCost] = append(timings[MeasureValidCost], validCost)
	timings[MeasureValidKLDivergenceCost] = append(timings[MeasureValidKLDivergenceCost], validKL)
	timings[MeasureValidPosteriorMeanVariance] = append(timings[MeasureValidPosteriorMeanVariance], validPosterior)

	switch {
	case isBest:
		sum.Patience = st.Patience
		sum.BestValidCost = min(sum.BestValidCost, validCost)
		if err := t.save(PostfixBest, db.KindBest, sum.Steps, validCost); err != nil {
			return err
		}
	case validCost >= last*st.CostThreshold:
		sum.Patience--
	}
	if t.opts.SaveEveryValid {
		if err := t.save(StepPostfix(sum.Steps), db.KindStep, sum.Steps, validCost); err != nil {
			return err
		}
	}
	if t.opts.AutoRestart {
		if err := t.save(PostfixAuto, db.KindAuto, sum.Steps, validCost); err != nil {
			return err
		}
	}

	t.log.Info().
		Float64("valid_cost", validCost).
		Float64("valid_word_perplexity", math.Exp(validCost)).
		Float64("valid_kl_divergence_cost", validKL).
		Float64("valid_posterior_mean_variance", validPosterior).
		Bool("best", isBest).
		Int("patience", sum.Patience).
		Msg("Validation")

	*acc = accumulator{}
	sum.ValidRounds++
	return nil
}

// save writes the model, state and timings under postfix and records the
// checkpoint in the registry when one is configured.
func (t *Trainer) save(postfix string, kind db.Kind, step int, validCost float64) error {
	st := t.sess.State
	start := t.clock()
	if err := os.MkdirAll(st.SaveDir, 0o755); err != nil {
		return fmt.Errorf("could not create save directory: %w", err)
	}

	base := CheckpointBase(st, postfix)
	if err := t.model.Save(base + ModelFile); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	if err := writeJSON(base+StateFile, st); err != nil {
		return err
	}
	if err := writeJSON(base+TimingFile, t.sess.Timings); err != nil {
		return err
	}

	if t.opts.Registry != nil {
		_, err := t.opts.Registry.RecordCheckpoint(&db.Checkpoint{
			RunID:     st.RunID,
			Kind:      kind,
			Step:      step,
			ValidCost: validCost,
			Base:      base,
		})
		if err != nil {
			t.log.Warn().Err(err).Str("path", base).Msg("Failed to record checkpoint")
		}
	}

	t.log.Info().Str("path", base).Dur("took", t.clock().Sub(start)).Msg("Model saved")
	return nil
}
