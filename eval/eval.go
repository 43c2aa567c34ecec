/*
Package eval computes loss of a network on held-out data
*/
package eval

import (
	"fmt"
	"math"

	"go-ml.dev/pkg/camp/fu"
	"go-ml.dev/pkg/camp/model"
	"golang.org/x/xerrors"
)

var ErrInvalidCriterion = xerrors.New("criterion must be 0 (CrossEntropy) or 1 (MSE)")

/*
ShapeError reports network output not matching the targets
*/
type ShapeError struct {
	Expected []int
	Actual   []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("for MSE, expected model output shape %v or [N,1], but got %v", e.Expected, e.Actual)
}

/*
Evaluate runs the network on the dataset features and returns the loss
*/
func Evaluate(net model.Network, data *model.Dataset, criterion model.Criterion) (float64, error) {
	if criterion != model.Classification && criterion != model.Regression {
		return 0, xerrors.Errorf("criterion %d: %w", int(criterion), ErrInvalidCriterion)
	}
	out, err := net.Forward(data.X)
	if err != nil {
		return 0, xerrors.Errorf("evaluation forward pass: %w", err)
	}
	return Loss(out, data.Y, criterion)
}

/*
Loss computes cross-entropy for classification and mse for regression
*/
func Loss(out, y model.Tensor, criterion model.Criterion) (float64, error) {
	switch criterion {
	case model.Classification:
		if out.Rank() == 1 {
			out = model.Matrix(out.Rows(), 1, out.Data)
		}
		return CrossEntropy(out, y)
	case model.Regression:
		switch {
		case model.SameShape(out.Shape, y.Shape):
		case out.Rank() == 2 && out.Cols() == 1 && y.Rank() == 1 && out.Rows() == y.Rows():
			out = model.Vector(out.Data)
		default:
			return 0, &ShapeError{Expected: y.Shape, Actual: out.Shape}
		}
		return fu.Mse(out.Data, y.Data), nil
	}
	return 0, xerrors.Errorf("criterion %d: %w", int(criterion), ErrInvalidCriterion)
}

/*
CrossEntropy is the mean negative log-softmax of the target class, logits are N x C
*/
func CrossEntropy(logits, y model.Tensor) (float64, error) {
	if logits.Rank() != 2 || logits.Rows() != y.Rows() {
		return 0, xerrors.Errorf("cross-entropy of logits %v with targets %v: %w", logits.Shape, y.Shape, model.ErrShape)
	}
	c := logits.Cols()
	var s float64
	for i := 0; i < logits.Rows(); i++ {
		k := int(y.Data[i])
		if k < 0 || k >= c {
			return 0, xerrors.Errorf("target %d is out of bounds for %d classes: %w", k, c, model.ErrShape)
		}
		s -= logSoftmax(logits.Row(i), k)
	}
	return s / float64(logits.Rows()), nil
}

func logSoftmax(row []float64, k int) float64 {
	m := row[fu.Indmaxd(row)]
	var z float64
	for _, v := range row {
		z += math.Exp(v - m)
	}
	return row[k] - m - math.Log(z)
}
