package transfermetrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
	"github.com/FrenchMajesty/transfer-metrics/metrics"
	"github.com/FrenchMajesty/transfer-metrics/tracking"
)

// state tracks the experiment lifecycle. Inference can only run once the
// dataset has been split and subsampled.
type state int

const (
	stateConstructed state = iota
	stateDataReady
	stateRunning
	stateCompleted
)

// Experiment owns the end-to-end run for one (model, dataset, metric-set,
// seed) combination.
type Experiment struct {
	cfg       Config
	providers Providers

	metrics        map[string]metrics.Metric
	inferenceTypes []metrics.InferenceType

	dataset *dataset.Dataset
	labels  []int

	results *Results
	state   state
}

// NewExperiment resolves the configuration, builds the requested metrics
// and prepares the metrics dataset: load, split, subsample to NSamples and
// then to MetricsSamples with stratified sampling. If stratification fails
// because a category has a single member, the subsample is retried without
// stratification and a warning is recorded; any other failure propagates.
func NewExperiment(cfg Config, providers Providers) (*Experiment, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:       cfg,
		providers: providers,
		metrics:   make(map[string]metrics.Metric, len(cfg.Metrics)),
		results:   newResults(cfg),
		state:     stateConstructed,
	}

	for _, name := range cfg.Metrics {
		metric, err := metrics.New(name, cfg.MetricKwargs[name])
		if err != nil {
			return nil, err
		}
		e.metrics[name] = metric
	}
	e.inferenceTypes = distinctInferenceTypes(cfg.Metrics, e.metrics)

	if err := e.prepareData(); err != nil {
		return nil, err
	}
	e.state = stateDataReady
	return e, nil
}

// prepareData loads the dataset and applies the split and subsampling
// policy, leaving the metrics dataset and label vector on the experiment.
func (e *Experiment) prepareData() error {
	log.Printf("Generating data sample for %s...", e.cfg.DatasetName)

	loader := e.providers.Datasets
	if loader == nil {
		loader = manifestLoader{}
	}
	ds, err := loader.LoadDataset(e.cfg.DatasetName, e.cfg.DatasetArgs.LoadArgs, e.cfg.Caches.Datasets)
	if err != nil {
		return fmt.Errorf("failed to load dataset %q: %w", e.cfg.DatasetName, err)
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	splits, err := dataset.CreateSplits(ds, e.cfg.DatasetArgs.SplitArgs, e.cfg.RandomState)
	if err != nil {
		return err
	}
	train := splits[e.cfg.DatasetArgs.TrainSplit]

	train, err = train.Subsample(e.cfg.NSamples, e.cfg.RandomState, true)
	if err != nil {
		return err
	}

	sub, err := train.Subsample(e.cfg.MetricsSamples, e.cfg.RandomState, true)
	if err != nil {
		var stratErr *dataset.StratificationError
		if !errors.As(err, &stratErr) {
			return err
		}
		e.warn("the train set has only one sample of some classes so can't be further subsetted with stratification to create the metrics set; a random subsample has been used instead")
		sub, err = train.Subsample(e.cfg.MetricsSamples, e.cfg.RandomState, false)
		if err != nil {
			return err
		}
	}

	e.dataset = sub
	e.labels = sub.Labels()
	return nil
}

// PerformInference produces the artifact metrics of the given inference
// type need, and how long that took. Unknown non-empty types fail before
// any inference work.
func (e *Experiment) PerformInference(ctx context.Context, inferenceType metrics.InferenceType) (metrics.ModelInput, time.Duration, error) {
	if e.state < stateDataReady {
		return metrics.ModelInput{}, 0, fmt.Errorf("cannot run inference before the dataset is prepared")
	}

	start := time.Now()
	switch inferenceType {
	case metrics.InferenceFeatures:
		features, err := e.featuresInference(ctx)
		if err != nil {
			return metrics.ModelInput{}, 0, err
		}
		return metrics.ModelInput{Features: features}, time.Since(start), nil

	case metrics.InferenceModel:
		if e.providers.ModelLoader == nil {
			return metrics.ModelInput{}, 0, fmt.Errorf("no model loader configured")
		}
		model, err := e.providers.ModelLoader.LoadModel(ctx)
		if err != nil {
			return metrics.ModelInput{}, 0, fmt.Errorf("failed to load model %q: %w", e.cfg.ModelName, err)
		}
		return metrics.ModelInput{Model: model}, time.Since(start), nil

	case metrics.InferenceNone:
		return metrics.ModelInput{}, time.Since(start), nil

	default:
		return metrics.ModelInput{}, 0, &UnsupportedInferenceTypeError{Type: inferenceType}
	}
}

// featuresInference extracts the feature matrix, going through the feature
// cache when one is configured. Cache failures are recoverable: the run
// warns and falls back to a fresh extraction.
func (e *Experiment) featuresInference(ctx context.Context) (*mat.Dense, error) {
	if e.providers.Extractor == nil {
		return nil, fmt.Errorf("no feature extractor configured")
	}

	key := e.cacheKey()
	if store := e.providers.FeatureStore; store != nil {
		cached, ok, err := store.Fetch(ctx, key, e.dataset.Len())
		if err != nil {
			e.warn("feature cache fetch failed, extracting features instead: %v", err)
		} else if ok {
			log.Printf("Using cached features for %s", key)
			return cached, nil
		}
	}

	features, err := e.providers.Extractor.ExtractFeatures(ctx, e.dataset, e.cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}

	if store := e.providers.FeatureStore; store != nil {
		if err := store.Store(ctx, key, features); err != nil {
			e.warn("failed to cache extracted features: %v", err)
		}
	}
	return features, nil
}

// ComputeMetricScore times and delegates to the metric's Fit.
func (e *Experiment) ComputeMetricScore(metric metrics.Metric, input metrics.ModelInput, labels []int) (float64, time.Duration, error) {
	start := time.Now()
	score, err := metric.Fit(input, labels)
	return score, time.Since(start), err
}

// Run executes the experiment: metrics are grouped by distinct inference
// type so each required inference pass happens at most once, then every
// metric in the group is scored against the shared artifact.
func (e *Experiment) Run(ctx context.Context) error {
	if e.state != stateDataReady {
		return fmt.Errorf("experiment cannot run from its current state")
	}
	e.state = stateRunning

	log.Printf("Scoring metrics %v with inference types %v", e.cfg.Metrics, e.inferenceTypes)
	for _, inferenceType := range e.inferenceTypes {
		log.Printf("Running inference for type %q", inferenceType)
		input, elapsed, err := e.PerformInference(ctx, inferenceType)
		if err != nil {
			return err
		}
		e.results.InferenceTimes[inferenceKey(inferenceType)] = elapsed.Seconds()

		for _, name := range e.cfg.Metrics {
			metric := e.metrics[name]
			if metric.InferenceType() != inferenceType {
				continue
			}
			log.Printf("Computing metric score for %s", name)
			score, took, err := e.ComputeMetricScore(metric, input, e.labels)
			if err != nil {
				return fmt.Errorf("metric %s failed: %w", name, err)
			}
			e.results.MetricScores[name] = MetricResult{Score: score, Time: took.Seconds()}
		}
	}

	e.state = stateCompleted
	return nil
}

// Results exposes the accumulated results record.
func (e *Experiment) Results() *Results {
	return e.results
}

// SaveResults persists the results record once the run has completed.
func (e *Experiment) SaveResults() (string, error) {
	if e.state != stateCompleted {
		return "", fmt.Errorf("cannot save results before the run has completed")
	}
	path, err := e.results.save(e.cfg.SaveDir)
	if err != nil {
		return "", err
	}
	log.Printf("Results saved to %s", path)
	return path, nil
}

// LogResults pushes the results record to the tracking run and finalizes
// the session.
func (e *Experiment) LogResults(ctx context.Context, run *tracking.Run) error {
	if e.state != stateCompleted {
		return fmt.Errorf("cannot log results before the run has completed")
	}
	if err := run.Log(ctx, e.results.Flat()); err != nil {
		return err
	}
	return run.Finish(ctx)
}

// warn records a user-visible warning on the results record and logs it.
func (e *Experiment) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("WARNING: %s", msg)
	e.results.Warnings = append(e.results.Warnings, msg)
}

// cacheKey identifies the feature matrix this run would extract.
func (e *Experiment) cacheKey() string {
	key := fmt.Sprintf("%s|%s|%d|%d|%d", e.cfg.ModelName, e.cfg.DatasetName, e.cfg.NSamples, e.cfg.MetricsSamples, e.cfg.RandomState)
	return strings.ReplaceAll(key, "/", "-")
}

// distinctInferenceTypes returns the metrics' inference types in order of
// first appearance.
func distinctInferenceTypes(order []string, byName map[string]metrics.Metric) []metrics.InferenceType {
	var out []metrics.InferenceType
	seen := make(map[metrics.InferenceType]bool)
	for _, name := range order {
		t := byName[name].InferenceType()
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// inferenceKey names an inference type in the results record.
func inferenceKey(t metrics.InferenceType) string {
	if t == metrics.InferenceNone {
		return "none"
	}
	return string(t)
}

// manifestLoader is the default dataset provider, reading JSONL manifests
// from disk.
type manifestLoader struct{}

func (manifestLoader) LoadDataset(name string, args dataset.LoadArgs, cacheDir string) (*dataset.Dataset, error) {
	return dataset.Load(name, args, cacheDir)
}

// RunConfig performs a full experiment for a resolved configuration:
// construct, run, then persist locally and/or to the tracking service as
// the configuration dictates.
func RunConfig(ctx context.Context, cfg Config, providers Providers) error {
	cfg.ApplyDefaults()

	var trackingRun *tracking.Run
	if cfg.UseTracking {
		run, err := tracking.StartRun(ctx, cfg.TrackingArgs)
		if err != nil {
			return err
		}
		trackingRun = run
	}

	experiment, err := NewExperiment(cfg, providers)
	if err != nil {
		return err
	}
	if err := experiment.Run(ctx); err != nil {
		return err
	}

	if cfg.LocalSave {
		if _, err := experiment.SaveResults(); err != nil {
			return err
		}
	}
	if trackingRun != nil {
		return experiment.LogResults(ctx, trackingRun)
	}
	return nil
}
