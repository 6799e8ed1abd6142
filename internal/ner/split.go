package ner

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"finsight/internal/dataset"
	"finsight/pkg/contracts/domain"
)

// Split file names inside the output directory
const (
	TrainFile      = "train.jsonl"
	ValidationFile = "validation.jsonl"
	TestFile       = "test.jsonl"
	MetadataFile   = "metadata.json"
)

// Splits holds the three partitions of a dataset
type Splits struct {
	Train      []domain.NERRecord
	Validation []domain.NERRecord
	Test       []domain.NERRecord
}

// Sizes returns the number of records per split
func (s Splits) Sizes() domain.SplitSizes {
	return domain.SplitSizes{
		Train:      len(s.Train),
		Validation: len(s.Validation),
		Test:       len(s.Test),
	}
}

// Split shuffles records with seed and holds out ceil(n*testSize) of them.
// The held-out part is shuffled again with the same seed, and
// ceil(m*valFraction) of it becomes the test split, the rest validation.
func Split(records []domain.NERRecord, testSize, valFraction float64, seed int64) Splits {
	train, temp := holdOut(records, testSize, seed)
	val, test := holdOut(temp, valFraction, seed)
	return Splits{Train: train, Validation: val, Test: test}
}

// holdOut returns (kept, heldOut) after a seeded permutation
func holdOut(records []domain.NERRecord, fraction float64, seed int64) ([]domain.NERRecord, []domain.NERRecord) {
	n := len(records)
	if n == 0 {
		return nil, nil
	}
	nHeld := int(math.Ceil(float64(n) * fraction))
	if nHeld > n {
		nHeld = n
	}
	if nHeld < 0 {
		nHeld = 0
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	held := make([]domain.NERRecord, 0, nHeld)
	kept := make([]domain.NERRecord, 0, n-nHeld)
	for i, idx := range perm {
		if i < nHeld {
			held = append(held, records[idx])
		} else {
			kept = append(kept, records[idx])
		}
	}
	return kept, held
}

// WriteSplits writes the three JSONL splits and metadata.json into dir
func WriteSplits(dir string, splits Splits, metadata domain.NERMetadata) error {
	files := []struct {
		name    string
		records []domain.NERRecord
	}{
		{TrainFile, splits.Train},
		{ValidationFile, splits.Validation},
		{TestFile, splits.Test},
	}
	for _, f := range files {
		if err := writeRecords(filepath.Join(dir, f.name), f.records); err != nil {
			return err
		}
	}
	if err := dataset.WriteJSONFile(filepath.Join(dir, MetadataFile), metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func writeRecords(path string, records []domain.NERRecord) error {
	w, err := dataset.NewWriter(path)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			w.Abort()
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	return w.Close()
}
