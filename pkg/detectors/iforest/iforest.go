// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/detectors"
)

// predictChunk is the number of rows scored per goroutine.
const predictChunk = 512

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	threshold     float64
	seed          int64
	workers       int

	// Trained model
	trees     []tree
	trained   bool
	nFeatures int

	// Statistics from training
	effectiveSample int
	avgPathLength   float64
}

// tree is an isolation tree stored as a flat node slice; Nodes[0] is the root.
type tree struct {
	Nodes []node
}

// node is an internal split or a leaf. Leaves have Left == -1.
type node struct {
	Feature int
	Split   float64
	Left    int32
	Right   int32
	Size    int
}

// Compile-time interface check.
var _ detectors.Detector = (*IsolationForest)(nil)

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithWorkers bounds the goroutines used to build trees and score rows.
func WithWorkers(n int) Option {
	return func(f *IsolationForest) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithConfig applies a shared detector configuration.
func WithConfig(cfg detectors.Config) Option {
	return func(f *IsolationForest) {
		f.nTrees = cfg.Trees
		f.sampleSize = cfg.SampleSize
		f.contamination = cfg.Contamination
		f.seed = cfg.RandomSeed
		if cfg.Workers > 0 {
			f.workers = cfg.Workers
		}
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		threshold:     0.5,
		seed:          42,
		workers:       runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data. The same data and seed always
// produce the same forest: subsamples and per-tree seeds are drawn sequentially from
// the seed before the trees are built in parallel.
func (f *IsolationForest) Fit(ctx context.Context, data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return eris.New("iforest: empty training data")
	}
	if f.nTrees <= 0 || f.sampleSize <= 0 {
		return eris.Errorf("iforest: invalid configuration trees=%d sample_size=%d", f.nTrees, f.sampleSize)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return eris.Errorf("iforest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	rng := rand.New(rand.NewSource(f.seed))
	samples := make([][][]float64, f.nTrees)
	seeds := make([]int64, f.nTrees)
	for i := range samples {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		samples[i] = sample
		seeds[i] = rng.Int63()
	}

	trees := make([]tree, f.nTrees)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := range trees {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "iforest: fit cancelled")
			}
			b := builder{rng: rand.New(rand.NewSource(seeds[i])), nFeatures: nFeatures, maxDepth: maxDepth}
			b.build(samples[i], 0)
			trees[i] = tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = nFeatures
	f.effectiveSample = sampleSize
	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	// Set threshold based on contamination
	if f.contamination > 0 {
		scores, err := f.predict(data)
		if err != nil {
			return err
		}
		f.threshold = quantile(scores, 1-f.contamination)
	}

	return nil
}

// builder grows one tree into a flat node slice.
type builder struct {
	rng       *rand.Rand
	nFeatures int
	maxDepth  int
	nodes     []node
}

func (b *builder) build(data [][]float64, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Size: len(data)})

	// Terminal conditions
	if depth >= b.maxDepth || len(data) <= 1 {
		return idx
	}

	// Random feature and split value
	feature := b.rng.Intn(b.nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return idx
	}

	splitValue := minVal + b.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	left := b.build(leftData, depth+1)
	right := b.build(rightData, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Split = splitValue
	b.nodes[idx].Left = left
	b.nodes[idx].Right = right
	return idx
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, eris.New("iforest: model not trained")
	}

	return f.predict(data)
}

func (f *IsolationForest) predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))

	var g errgroup.Group
	g.SetLimit(f.workers)
	for start := 0; start < len(data); start += predictChunk {
		end := min(start+predictChunk, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				score, err := f.predictOne(data[i])
				if err != nil {
					return eris.Wrapf(err, "iforest: row %d", i)
				}
				scores[i] = score
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, eris.New("iforest: model not trained")
	}

	return f.predictOne(sample)
}

func (f *IsolationForest) predictOne(sample []float64) (float64, error) {
	if len(sample) != f.nFeatures {
		return 0, eris.Errorf("iforest: sample has %d features, want %d", len(sample), f.nFeatures)
	}

	// Average path length across all trees
	var totalPath float64
	for i := range f.trees {
		totalPath += f.trees[i].pathLength(sample)
	}
	avgPath := totalPath / float64(len(f.trees))

	// A forest fitted on a single sample isolates nothing.
	if f.avgPathLength == 0 {
		return 0.5, nil
	}

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength), nil
}

// Classify scores the samples and flags those strictly above the threshold.
func (f *IsolationForest) Classify(data [][]float64) ([]detectors.Score, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, eris.New("iforest: model not trained")
	}

	scores, err := f.predict(data)
	if err != nil {
		return nil, err
	}

	out := make([]detectors.Score, len(scores))
	for i, s := range scores {
		out[i] = detectors.Score{Value: s, IsAnomaly: s > f.threshold}
	}
	return out, nil
}

// pathLength calculates the path length for a sample in a tree.
func (t *tree) pathLength(sample []float64) float64 {
	var depth float64
	n := &t.Nodes[0]
	for n.Left >= 0 {
		if sample[n.Feature] < n.Split {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
		depth++
	}
	// Leaf node: add expected path length for remaining isolation
	return depth + averagePathLength(float64(n.Size))
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ≈ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// snapshot is the serialized form of a trained forest.
type snapshot struct {
	NTrees          int
	SampleSize      int
	EffectiveSample int
	Contamination   float64
	Threshold       float64
	Seed            int64
	NFeatures       int
	AvgPathLength   float64
	Trees           []tree
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, eris.New("iforest: model not trained")
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		NTrees:          f.nTrees,
		SampleSize:      f.sampleSize,
		EffectiveSample: f.effectiveSample,
		Contamination:   f.contamination,
		Threshold:       f.threshold,
		Seed:            f.seed,
		NFeatures:       f.nFeatures,
		AvgPathLength:   f.avgPathLength,
		Trees:           f.trees,
	})
	if err != nil {
		return nil, eris.Wrap(err, "iforest: encode")
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return eris.Wrap(err, "iforest: decode")
	}
	if err := s.validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = s.NTrees
	f.sampleSize = s.SampleSize
	f.effectiveSample = s.EffectiveSample
	f.contamination = s.Contamination
	f.threshold = s.Threshold
	f.seed = s.Seed
	f.nFeatures = s.NFeatures
	f.avgPathLength = s.AvgPathLength
	f.trees = s.Trees
	f.trained = true

	return nil
}

func (s *snapshot) validate() error {
	if s.NTrees <= 0 || len(s.Trees) != s.NTrees {
		return eris.Errorf("iforest: snapshot has %d trees, header says %d", len(s.Trees), s.NTrees)
	}
	if s.NFeatures <= 0 {
		return eris.Errorf("iforest: snapshot has %d features", s.NFeatures)
	}
	for i, t := range s.Trees {
		if len(t.Nodes) == 0 {
			return eris.Errorf("iforest: tree %d is empty", i)
		}
		for _, n := range t.Nodes {
			if n.Left < 0 {
				continue
			}
			if int(n.Left) >= len(t.Nodes) || int(n.Right) >= len(t.Nodes) || n.Right < 0 ||
				n.Feature < 0 || n.Feature >= s.NFeatures {
				return eris.Errorf("iforest: tree %d has a dangling node", i)
			}
		}
	}
	return nil
}

// NumFeatures returns the width of the training data.
func (f *IsolationForest) NumFeatures() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nFeatures
}

// Trained reports whether Fit or Load has completed.
func (f *IsolationForest) Trained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trained
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// quantile returns the q-quantile of data with linear interpolation between
// closest ranks.
func quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
