package model

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
)

/*
DefaultLabel is the name of the target column in dataset bundles
*/
const DefaultLabel = "target"

/*
Dataset is held-out evaluation data, read-only for every consumer
*/
type Dataset struct {
	X        Tensor   // N x D features
	Y        Tensor   // N targets
	Features []string // feature column names
	Label    string   // name of the target column
	Device   Device   // where the data lives
}

/*
NewDataset creates dataset from row-major features and targets
*/
func NewDataset(rows, cols int, x, y []float64) *Dataset {
	return &Dataset{X: Matrix(rows, cols, x), Y: Vector(y), Label: DefaultLabel}
}

func (d *Dataset) Len() int {
	return d.X.Rows()
}

/*
Head returns the first n examples
*/
func (d *Dataset) Head(n int) Tensor {
	return d.X.Head(n)
}

/*
LoadCSV reads a tabular file with header, label column becomes Y and all
other columns become X
*/
func LoadCSV(path string, label string) (*Dataset, error) {
	rd, err := iokit.File(path).Open()
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to open dataset %v: %v", path, err.Error())
	}
	defer rd.Close()
	ds, err := ReadCSV(rd, label)
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to read dataset %v: %v", path, err.Error())
	}
	return ds, nil
}

func ReadCSV(r io.Reader, label string) (*Dataset, error) {
	if label == "" {
		label = DefaultLabel
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, zorros.Wrapf(err, "dataset has no header: %v", err.Error())
	}
	li := -1
	features := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == label {
			li = i
		} else {
			features = append(features, h)
		}
	}
	if li < 0 {
		return nil, zorros.Errorf("dataset has no `%v` column", label)
	}
	var x, y []float64
	rows := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, zorros.Trace(err)
		}
		for i, s := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, zorros.Errorf("row %d column `%v`: %v", rows+1, header[i], err.Error())
			}
			if i == li {
				y = append(y, v)
			} else {
				x = append(x, v)
			}
		}
		rows++
	}
	if x == nil {
		x = []float64{}
	}
	if y == nil {
		y = []float64{}
	}
	return &Dataset{
		X:        Matrix(rows, len(features), x),
		Y:        Vector(y),
		Features: features,
		Label:    label,
	}, nil
}
