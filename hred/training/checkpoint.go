package training

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/hred-go/hred/db"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidState            = errors.New("invalid training state")
	ErrIncompatibleOptions     = errors.New("auto restart cannot be combined with resume or save every valid iteration")
	ErrMultipleAutoCheckpoints = errors.New("found multiple auto-restart models in directory")
	ErrResumeFilesMissing      = errors.New("cannot resume, cannot find files")
	ErrMissingRunID            = errors.New("resumed state has no run id")
	ErrNoValidationPredictions = errors.New("validation produced no word predictions")
)

// Checkpoint file suffixes appended to a checkpoint base path.
const (
	ModelFile  = "model.bin"
	StateFile  = "state.json"
	TimingFile = "timing.json"
)

// Checkpoint postfixes.
const (
	PostfixBest = ""
	PostfixAuto = "_auto_"
)

// StepPostfix is the postfix of the copy kept for a given step when every
// validation round is saved.
func StepPostfix(step int) string { return "_" + strconv.Itoa(step) + "_" }

// Parameter name fragments reinitialised instead of loaded on resume.
var (
	DecoderParameters        = []string{"Wd_", "bd_"}
	LatentVariableParameters = []string{
		"latent_utterance_prior",
		"latent_utterance_approx_posterior",
		"kl_divergence_cost_weight",
		"latent_dcgm_encoder",
	}
)

// CheckpointBase returns the path prefix shared by the model, state and
// timing files of a checkpoint:
// <saveDir>/<runId>_<prefix><postfix>
func CheckpointBase(s *State, postfix string) string {
	return filepath.Join(s.SaveDir, s.RunID+"_"+s.Prefix+postfix)
}

// ResumeFiles returns the model, state and timing files a resume path
// refers to. A resume path is a checkpoint base without its trailing
// underscore.
func ResumeFiles(resume string) (model, state, timing string) {
	return resume + "_" + ModelFile, resume + "_" + StateFile, resume + "_" + TimingFile
}

// FindAutoCheckpoint scans dir for a model saved by auto restart under
// prefix and returns its resume path, or "" when there is none. More than
// one candidate is an error.
func FindAutoCheckpoint(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	suffix := prefix + PostfixAuto + ModelFile
	found := ""
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || len(name) <= len(suffix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %s", ErrMultipleAutoCheckpoints, dir)
		}
		found = filepath.Join(dir, strings.TrimSuffix(name, "_"+ModelFile))
	}
	return found, nil
}

// Options selects how a run starts and what it saves.
type Options struct {
	// Resume is the resume path of a checkpoint to continue from.
	Resume string
	// ReinitializeDecoder and ReinitializeLatent drop those parameter
	// groups when resuming.
	ReinitializeDecoder bool
	ReinitializeLatent  bool
	// SaveEveryValid keeps a copy of the model at every validation round.
	SaveEveryValid bool
	// AutoRestart keeps an auto copy updated at every validation round and
	// resumes from it when one exists.
	AutoRestart bool
	// ForceTrainAllWordEmb trains pretrained word embeddings even when the
	// state fixes them.
	ForceTrainAllWordEmb bool
	// Registry, when set, records every checkpoint written.
	Registry db.RunRegistry
	Logger   zerolog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Session is the resolved starting point of a run.
type Session struct {
	State   *State
	Timings Timings
	// ModelPath is the model file to load, empty for a fresh run.
	ModelPath string
	// Ignore lists parameter name fragments not loaded from ModelPath.
	Ignore []string
	// SaveOnFirstValid forces a save on the first validation round after
	// parameters were reinitialised.
	SaveOnFirstValid bool
	AutoRestarting   bool
}

// Prepare resolves the state, timings and model to start from. proto is the
// configured state; on resume it is replaced by the stored one.
func Prepare(proto State, opts Options) (*Session, error) {
	log := opts.Logger
	st := proto
	sess := &Session{State: &st, Timings: NewTimings()}

	resume := opts.Resume
	reinitDecoder, reinitLatent := opts.ReinitializeDecoder, opts.ReinitializeLatent

	if opts.AutoRestart {
		if opts.SaveEveryValid || resume != "" {
			return nil, ErrIncompatibleOptions
		}
		found, err := FindAutoCheckpoint(st.SaveDir, st.Prefix)
		if err != nil {
			return nil, err
		}
		if found != "" {
			log.Debug().Str("path", found).Msg("Found model to automatically resume")
			resume = found
			sess.AutoRestarting = true
			reinitDecoder, reinitLatent = false, false
		} else {
			log.Debug().Msg("Could not find any model to automatically resume")
		}
	}

	if resume == "" {
		st.RunID = uuid.NewString()
	} else {
		log.Debug().Str("resume", resume).Msg("Resuming")
		modelFile, stateFile, timingFile := ResumeFiles(resume)
		for _, f := range []string{stateFile, timingFile, modelFile} {
			if _, err := os.Stat(f); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrResumeFilesMissing, f)
			}
		}

		var stored State
		if err := readJSON(stateFile, &stored); err != nil {
			return nil, err
		}
		if stored.RunID == "" {
			return nil, ErrMissingRunID
		}
		timings, err := loadTimings(timingFile)
		if err != nil {
			return nil, err
		}
		// new shuffles of the training data on every restart
		stored.Seed += 10
		st = stored
		sess.Timings = timings
		sess.ModelPath = modelFile

		if reinitDecoder {
			sess.Ignore = append(sess.Ignore, DecoderParameters...)
			sess.SaveOnFirstValid = true
		}
		if reinitLatent {
			sess.Ignore = append(sess.Ignore, LatentVariableParameters...)
			sess.SaveOnFirstValid = true
		}
	}

	if opts.ForceTrainAllWordEmb {
		st.FixPretrainedWordEmbeddings = false
	}
	if err := st.validate(); err != nil {
		return nil, err
	}

	log.Debug().Interface("state", st).Msg("State")
	return sess, nil
}
