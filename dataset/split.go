package dataset

import (
	"fmt"
	"math/rand"
)

// SplitArgs configures train/validation/test splitting.
type SplitArgs struct {
	// TrainSplit, ValSplit and TestSplit name the produced splits,
	// "train"/"validation"/"test" by default. Metric experiments read from
	// the train split.
	TrainSplit string `yaml:"train_split"`
	ValSplit   string `yaml:"val_split"`
	TestSplit  string `yaml:"test_split"`

	// ValSize and TestSize are the fractions of samples moved into the
	// validation and test splits, 0.15 each by default.
	ValSize  float64 `yaml:"val_size"`
	TestSize float64 `yaml:"test_size"`
}

// ApplyDefaults fills unset split names and sizes.
func (a *SplitArgs) ApplyDefaults() {
	if a.TrainSplit == "" {
		a.TrainSplit = "train"
	}
	if a.ValSplit == "" {
		a.ValSplit = "validation"
	}
	if a.TestSplit == "" {
		a.TestSplit = "test"
	}
	if a.ValSize == 0 {
		a.ValSize = 0.15
	}
	if a.TestSize == 0 {
		a.TestSize = 0.15
	}
}

// CreateSplits partitions the dataset into named train/validation/test
// splits by shuffled assignment; the remainder after carving validation and
// test becomes the train split. Deterministic in the seed.
func CreateSplits(d *Dataset, args SplitArgs, seed int64) (map[string]*Dataset, error) {
	args.ApplyDefaults()

	n := d.Len()
	if n == 0 {
		return nil, fmt.Errorf("cannot split an empty dataset")
	}

	order := rand.New(rand.NewSource(seed)).Perm(n)

	valSize := int(float64(n) * args.ValSize)
	testSize := int(float64(n) * args.TestSize)
	if valSize+testSize >= n {
		return nil, fmt.Errorf("validation and test fractions leave no training data (%d samples)", n)
	}

	return map[string]*Dataset{
		args.ValSplit:   d.subset(order[:valSize]),
		args.TestSplit:  d.subset(order[valSize : valSize+testSize]),
		args.TrainSplit: d.subset(order[valSize+testSize:]),
	}, nil
}
