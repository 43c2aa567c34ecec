/*
Package report collects the outcome of a compression run
*/
package report

import (
	"os"
	"time"

	"go-ml.dev/pkg/zorros"
)

const megabyte = 1024 * 1024

/*
Sizes is the original and compressed artifact sizes in bytes
*/
type Sizes struct {
	Original   int64
	Compressed int64
}

/*
Stat reads artifact sizes from the file system
*/
func Stat(original, compressed string) (Sizes, error) {
	o, err := os.Stat(original)
	if err != nil {
		return Sizes{}, zorros.Trace(err)
	}
	c, err := os.Stat(compressed)
	if err != nil {
		return Sizes{}, zorros.Trace(err)
	}
	return Sizes{Original: o.Size(), Compressed: c.Size()}, nil
}

/*
Reduction returns size reduction in percents, false when original size is zero
*/
func (s Sizes) Reduction() (float64, bool) {
	if s.Original == 0 {
		return 0, false
	}
	o, c := MB(s.Original), MB(s.Compressed)
	return (o - c) / o * 100, true
}

/*
MB converts bytes to megabytes
*/
func MB(b int64) float64 {
	return float64(b) / megabyte
}

/*
Run is the report of one compression run
*/
type Run struct {
	StartedAt  time.Time
	ModelPath  string
	OutputPath string
	Platform   int
	Constraint int
	Strategy   int
	Transforms []string
	Kind       string
	Loss       float64
	Sizes
}
