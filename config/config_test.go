package config_test

import (
	"encoding/json"
	"io/ioutil"
	"testing"

	"go-ml.dev/pkg/camp/config"
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/policy"
	"golang.org/x/xerrors"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

const sample = `{
    "ai_model_name": "iris_model.nn",
    "dataset_bundle": "iris_features.csv",
    "optimization_level": "size",
    "criterion": "classification",
    "device": "MCU",
    "owner": "someone"
}`

func Test_Load(t *testing.T) {
	dir := fs.NewDir(t, "config", fs.WithFile("camp.json", sample))
	defer dir.Remove()
	cfg, err := config.Load(dir.Join("camp.json"))
	assert.NilError(t, err)
	assert.Equal(t, cfg.ModelPath, "iris_model.nn")
	assert.Equal(t, cfg.DatasetPath, "iris_features.csv")
	assert.Equal(t, cfg.Constraint, policy.Size)
	assert.Equal(t, cfg.Criterion, model.Classification)
	assert.Equal(t, cfg.Platform, policy.MCU)
	assert.Equal(t, cfg.PruneAmount, 0.3)
	assert.Equal(t, cfg.Clusters, 16)
	assert.Equal(t, cfg.PolicyModel, config.DefaultPolicyModel)
	assert.DeepEqual(t, cfg.Context().Vector(), []float64{3, 3})
}

func Test_Decoding(t *testing.T) {
	for s, c := range map[string]policy.Constraint{"accuracy": 1, "latency": 2, "size": 3} {
		q, err := config.ParseConstraint(s)
		assert.NilError(t, err)
		assert.Equal(t, q, c)
	}
	_, err := config.ParseConstraint("speed")
	assert.Assert(t, xerrors.Is(err, config.ErrBadValue))
	for s, p := range map[string]policy.Platform{"GPU": 1, "CPU": 2, "MCU": 3, "TPU": 4, "": 4} {
		assert.Equal(t, config.ParsePlatform(s), p)
	}
	assert.Equal(t, config.ParseCriterion("regression"), model.Regression)
	assert.Equal(t, config.ParseCriterion("classification"), model.Classification)
	assert.Equal(t, config.ParseCriterion("whatever"), model.Classification)
}

func Test_MissingKey(t *testing.T) {
	dir := fs.NewDir(t, "config", fs.WithFile("camp.json", `{"ai_model_name": "m.nn", "dataset_bundle": "d.csv"}`))
	defer dir.Remove()
	_, err := config.Load(dir.Join("camp.json"))
	assert.Assert(t, xerrors.Is(err, config.ErrMissingKey))
	assert.ErrorContains(t, err, "optimization_level")
}

func Test_MissingFile(t *testing.T) {
	dir := fs.NewDir(t, "config")
	defer dir.Remove()
	_, err := config.Load(dir.Join("nope.json"))
	assert.Assert(t, err != nil)
}

func Test_SaveCompressed(t *testing.T) {
	dir := fs.NewDir(t, "config", fs.WithFile("camp.json", sample))
	defer dir.Remove()
	path := dir.Join("camp.json")
	assert.NilError(t, config.SaveCompressed(path, "compressed_model.nn"))
	b, err := ioutil.ReadFile(path)
	assert.NilError(t, err)
	m := map[string]interface{}{}
	assert.NilError(t, json.Unmarshal(b, &m))
	assert.Equal(t, m["compressed_model"], "compressed_model.nn")
	assert.Equal(t, m["owner"], "someone")
	assert.Equal(t, m["device"], "MCU")
	_, err = config.Load(path)
	assert.NilError(t, err)
}

func Test_SaveCompressedKeepsKeys(t *testing.T) {
	src := `{"UserNote": "Keep", "a.b": 1, "nested": {"X": [1, 2.50]}, "compressed_model": "old.nn", "device": "CPU"}`
	dir := fs.NewDir(t, "config", fs.WithFile("camp.json", src))
	defer dir.Remove()
	path := dir.Join("camp.json")
	assert.NilError(t, config.SaveCompressed(path, "out/compressed_model.nnt"))
	b, err := ioutil.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{
    "UserNote": "Keep",
    "a.b": 1,
    "nested": {
        "X": [
            1,
            2.50
        ]
    },
    "compressed_model": "out/compressed_model.nnt",
    "device": "CPU"
}
`)
}

func Test_SaveCompressedNotObject(t *testing.T) {
	dir := fs.NewDir(t, "config", fs.WithFile("camp.json", `[1, 2]`))
	defer dir.Remove()
	err := config.SaveCompressed(dir.Join("camp.json"), "m.nn")
	assert.Assert(t, xerrors.Is(err, config.ErrBadValue), err)
	b, err := ioutil.ReadFile(dir.Join("camp.json"))
	assert.NilError(t, err)
	assert.Equal(t, string(b), `[1, 2]`)
}
