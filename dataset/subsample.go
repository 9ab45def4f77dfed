package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// StratificationError signals that a stratified subsample could not be drawn
// because some category is too small to be split while preserving class
// balance. Callers recognize it with errors.As and may fall back to an
// unstratified draw.
type StratificationError struct {
	Label string
	Count int
}

func (e *StratificationError) Error() string {
	return fmt.Sprintf("the least populated class %q has only %d member, which is too few to subsample with stratification", e.Label, e.Count)
}

// Subsample draws keepSize samples from the dataset, deterministic in the
// seed. With stratify set the draw preserves the relative frequency of each
// category; every class must have at least two members or the draw fails
// with *StratificationError. A keepSize at or above the dataset size returns
// the dataset unchanged.
func (d *Dataset) Subsample(keepSize int, seed int64, stratify bool) (*Dataset, error) {
	n := d.Len()
	if keepSize <= 0 {
		return nil, fmt.Errorf("subsample size must be positive, got %d", keepSize)
	}
	if keepSize >= n {
		return d, nil
	}

	rng := rand.New(rand.NewSource(seed))
	if !stratify {
		order := rng.Perm(n)
		indices := append([]int(nil), order[:keepSize]...)
		sort.Ints(indices)
		return d.subset(indices), nil
	}

	// Group sample indices by class, in encoding order.
	byClass := make([][]int, d.Classes.NumClasses())
	for i, s := range d.Samples {
		byClass[s.Label] = append(byClass[s.Label], i)
	}

	for label, members := range byClass {
		if len(members) == 1 {
			return nil, &StratificationError{Label: d.Classes.Name(label), Count: len(members)}
		}
	}

	// Proportional allocation with largest-remainder rounding, so the class
	// frequencies of the subsample track the full dataset and the total is
	// exactly keepSize.
	type share struct {
		label     int
		count     int
		remainder float64
	}
	shares := make([]share, 0, len(byClass))
	total := 0
	for label, members := range byClass {
		if len(members) == 0 {
			continue
		}
		exact := float64(keepSize) * float64(len(members)) / float64(n)
		count := int(exact)
		if count > len(members) {
			count = len(members)
		}
		total += count
		shares = append(shares, share{label: label, count: count, remainder: exact - float64(count)})
	}
	sort.SliceStable(shares, func(a, b int) bool { return shares[a].remainder > shares[b].remainder })
	for i := 0; total < keepSize; i = (i + 1) % len(shares) {
		if shares[i].count < len(byClass[shares[i].label]) {
			shares[i].count++
			total++
		}
	}

	var indices []int
	for _, s := range shares {
		members := byClass[s.label]
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		indices = append(indices, members[:s.count]...)
	}
	sort.Ints(indices)
	return d.subset(indices), nil
}
