package ml

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// minGain is the smallest impurity decrease worth splitting on.
const minGain = 1e-12

// Forest is a bagged ensemble of binary decision trees with balanced class
// weights. All randomness comes from a seeded source, so the same data and
// config always produce the same model. A trained forest is read-only.
type Forest struct {
	cfg         domain.ForestConfig
	trees       []*dtNode
	numFeatures int
	maxFeatures int
	importance  []float64
	trained     bool
	trainedAt   time.Time
	trainSize   int
	accuracy    float64
}

// dtNode is a node in a decision tree. Leaves carry the weighted share of the
// positive class.
type dtNode struct {
	feature     int
	threshold   float64
	left        *dtNode // feature < threshold
	right       *dtNode // feature >= threshold
	isLeaf      bool
	probability float64
}

// treeBuilder holds the per-fit state shared by all trees.
type treeBuilder struct {
	X           [][]float64
	y           []int
	classWeight [2]float64
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	importance  []float64
}

// ModelInfo describes a fitted forest.
type ModelInfo struct {
	Trees             int                `json:"trees"`
	MaxDepth          int                `json:"maxDepth"`
	Trained           bool               `json:"trained"`
	TrainingSize      int                `json:"trainingSize"`
	TrainingAccuracy  float64            `json:"trainingAccuracy"`
	TrainedAt         time.Time          `json:"trainedAt"`
	FeatureImportance map[string]float64 `json:"featureImportance"`
}

// NewForest creates an untrained forest. Zero config values take defaults.
func NewForest(cfg domain.ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = 30
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 6
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	return &Forest{cfg: cfg}
}

// Fit trains the forest on rows of X with binary labels y.
func (f *Forest) Fit(X [][]float64, y []int) error {
	start := time.Now()
	n := len(X)
	if n == 0 || len(y) != n {
		return fmt.Errorf("invalid training data: %d rows, %d labels", n, len(y))
	}

	var counts [2]int
	for _, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("invalid label %d: must be 0 or 1", label)
		}
		counts[label]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return fmt.Errorf("training data must contain both classes")
	}

	f.numFeatures = len(X[0])
	f.maxFeatures = max(1, int(math.Sqrt(float64(f.numFeatures))))

	b := &treeBuilder{
		X:           X,
		y:           y,
		maxDepth:    f.cfg.MaxDepth,
		minLeaf:     f.cfg.MinSamplesLeaf,
		maxFeatures: f.maxFeatures,
		rng:         rand.New(rand.NewSource(f.cfg.Seed)),
	}
	for c := range counts {
		b.classWeight[c] = float64(n) / (2 * float64(counts[c]))
	}

	f.trees = make([]*dtNode, f.cfg.Trees)
	f.importance = make([]float64, f.numFeatures)

	for t := range f.trees {
		b.importance = make([]float64, f.numFeatures)
		f.trees[t] = b.build(b.bootstrap(n), 0)

		total := 0.0
		for _, v := range b.importance {
			total += v
		}
		if total > 0 {
			for j, v := range b.importance {
				f.importance[j] += v / total
			}
		}
	}

	total := 0.0
	for _, v := range f.importance {
		total += v
	}
	if total > 0 {
		for j := range f.importance {
			f.importance[j] /= total
		}
	}

	f.trained = true

	correct := 0
	for i, row := range X {
		pred := 0
		if f.PredictProba(row) >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	f.accuracy = float64(correct) / float64(n)
	f.trainSize = n
	f.trainedAt = time.Now().UTC()

	slog.Debug("random forest trained",
		"trees", f.cfg.Trees,
		"training_size", n,
		"accuracy", f.accuracy,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// PredictProba returns the ensemble's average positive-class probability.
// An untrained forest returns 0.
func (f *Forest) PredictProba(x []float64) float64 {
	if !f.trained || len(f.trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, root := range f.trees {
		sum += predictTree(root, x)
	}
	return sum / float64(len(f.trees))
}

// IsTrained reports whether Fit completed successfully.
func (f *Forest) IsTrained() bool {
	return f.trained
}

// FeatureImportance returns the normalized mean impurity decrease per feature.
func (f *Forest) FeatureImportance() []float64 {
	return append([]float64(nil), f.importance...)
}

// Info summarizes the model.
func (f *Forest) Info() ModelInfo {
	info := ModelInfo{
		Trees:             f.cfg.Trees,
		MaxDepth:          f.cfg.MaxDepth,
		Trained:           f.trained,
		TrainingSize:      f.trainSize,
		TrainingAccuracy:  f.accuracy,
		TrainedAt:         f.trainedAt,
		FeatureImportance: make(map[string]float64, len(f.importance)),
	}
	for j, v := range f.importance {
		name := fmt.Sprintf("feature_%d", j)
		if j < NumFeatures {
			name = FeatureNames[j]
		}
		info.FeatureImportance[name] = v
	}
	return info
}

func predictTree(node *dtNode, x []float64) float64 {
	for node != nil && !node.isLeaf {
		if x[node.feature] < node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	if node == nil {
		return 0
	}
	return node.probability
}

// bootstrap draws n row indexes with replacement.
func (b *treeBuilder) bootstrap(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.Intn(n)
	}
	return idx
}

func (b *treeBuilder) weights(idx []int) (neg, pos float64) {
	for _, i := range idx {
		if b.y[i] == 1 {
			pos += b.classWeight[1]
		} else {
			neg += b.classWeight[0]
		}
	}
	return neg, pos
}

func (b *treeBuilder) build(idx []int, depth int) *dtNode {
	neg, pos := b.weights(idx)
	leaf := &dtNode{isLeaf: true, probability: pos / (neg + pos)}

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf || neg == 0 || pos == 0 {
		return leaf
	}

	feature, threshold, gain := b.bestSplit(idx, neg, pos)
	if gain <= minGain {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	b.importance[feature] += gain

	return &dtNode{
		feature:   feature,
		threshold: threshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

// bestSplit searches a random subset of features for the split with the
// largest weighted Gini decrease. Candidate thresholds are midpoints between
// consecutive distinct values.
func (b *treeBuilder) bestSplit(idx []int, neg, pos float64) (int, float64, float64) {
	total := neg + pos
	parent := total * gini(neg, pos)

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0

	candidates := b.rng.Perm(len(b.X[0]))[:b.maxFeatures]
	sorted := make([]int, len(idx))

	for _, feat := range candidates {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(i, j int) int {
			return cmp.Compare(b.X[i][feat], b.X[j][feat])
		})

		var leftNeg, leftPos float64
		for k := 0; k < len(sorted)-1; k++ {
			if b.y[sorted[k]] == 1 {
				leftPos += b.classWeight[1]
			} else {
				leftNeg += b.classWeight[0]
			}

			cur, next := b.X[sorted[k]][feat], b.X[sorted[k+1]][feat]
			if cur == next {
				continue
			}
			if k+1 < b.minLeaf || len(sorted)-k-1 < b.minLeaf {
				continue
			}

			rightNeg, rightPos := neg-leftNeg, pos-leftPos
			gain := parent -
				(leftNeg+leftPos)*gini(leftNeg, leftPos) -
				(rightNeg+rightPos)*gini(rightNeg, rightPos)

			if gain > bestGain {
				bestFeature = feat
				bestThreshold = (cur + next) / 2
				bestGain = gain
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0
	}
	return bestFeature, bestThreshold, bestGain
}

// gini is the impurity of a weighted two-class node.
func gini(neg, pos float64) float64 {
	total := neg + pos
	if total == 0 {
		return 0
	}
	p := pos / total
	return 2 * p * (1 - p)
}
