// Package dataset holds the in-memory image classification datasets that
// metric experiments run against, along with loading, splitting and
// subsampling of them.
package dataset

import "fmt"

// Sample is a single dataset entry. Input is an opaque reference the feature
// extractor understands (an image path or URL, or raw text for text-mode
// extractors); Label is an index into the dataset's ClassLabel.
type Sample struct {
	Input string
	Label int
}

// ClassLabel is a stable bidirectional mapping between category names and
// integer indices, fixed when the dataset is loaded.
type ClassLabel struct {
	names []string
	index map[string]int
}

// NewClassLabel builds a ClassLabel from an ordered category-name list.
func NewClassLabel(names []string) *ClassLabel {
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	return &ClassLabel{names: names, index: index}
}

// NumClasses returns the number of categories.
func (c *ClassLabel) NumClasses() int { return len(c.names) }

// Names returns the ordered category names.
func (c *ClassLabel) Names() []string { return c.names }

// Index resolves a category name to its index.
func (c *ClassLabel) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Name resolves an index back to its category name.
func (c *ClassLabel) Name(i int) string { return c.names[i] }

// Dataset is an ordered collection of labeled samples. Every sample's label
// is an index into Classes.
type Dataset struct {
	Name    string
	Samples []Sample
	Classes *ClassLabel
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Samples) }

// Labels returns the label vector in sample order.
func (d *Dataset) Labels() []int {
	labels := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		labels[i] = s.Label
	}
	return labels
}

// Inputs returns the sample input references in sample order.
func (d *Dataset) Inputs() []string {
	inputs := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		inputs[i] = s.Input
	}
	return inputs
}

// subset builds a new dataset containing the samples at the given indices,
// in the given order, sharing the class encoding.
func (d *Dataset) subset(indices []int) *Dataset {
	samples := make([]Sample, len(indices))
	for i, idx := range indices {
		samples[i] = d.Samples[idx]
	}
	return &Dataset{Name: d.Name, Samples: samples, Classes: d.Classes}
}

// Validate checks that every label is in range of the class encoding.
func (d *Dataset) Validate() error {
	for i, s := range d.Samples {
		if s.Label < 0 || s.Label >= d.Classes.NumClasses() {
			return fmt.Errorf("sample %d has label %d outside the %d configured classes", i, s.Label, d.Classes.NumClasses())
		}
	}
	return nil
}
