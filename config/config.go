/*
Package config reads and updates the run configuration artifact
*/
package config

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go-ml.dev/pkg/camp/model"
	"go-ml.dev/pkg/camp/model/transform"
	"go-ml.dev/pkg/camp/policy"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"golang.org/x/xerrors"
)

const (
	KeyModel           = "ai_model_name"
	KeyDataset         = "dataset_bundle"
	KeyOptimization    = "optimization_level"
	KeyCriterion       = "criterion"
	KeyDevice          = "device"
	KeyCompressedModel = "compressed_model"
	KeyPruneAmount     = "pruning_amount"
	KeyClusters        = "cluster_count"
	KeyPolicyModel     = "policy_model"
)

// DefaultPolicyModel is the policy network artifact used when the config does not name one
const DefaultPolicyModel = "compression_model" + model.StandardExt

var (
	ErrMissingKey = xerrors.New("config key not found")
	ErrBadValue   = xerrors.New("invalid config value")
)

var required = []string{KeyModel, KeyDataset, KeyOptimization, KeyCriterion, KeyDevice}

/*
Config is the decoded configuration artifact
*/
type Config struct {
	ModelPath   string
	DatasetPath string
	PolicyModel string
	Constraint  policy.Constraint
	Criterion   model.Criterion
	Platform    policy.Platform
	PruneAmount float64
	Clusters    int
}

/*
Load reads the JSON configuration artifact
*/
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault(KeyPruneAmount, transform.DefaultPruneAmount)
	v.SetDefault(KeyClusters, transform.DefaultClusters)
	v.SetDefault(KeyPolicyModel, DefaultPolicyModel)
	if err := v.ReadInConfig(); err != nil {
		return nil, zorros.Wrapf(err, "failed to read config %v: %v", path, err.Error())
	}
	for _, k := range required {
		if !v.IsSet(k) {
			return nil, xerrors.Errorf("%v: %w", k, ErrMissingKey)
		}
	}
	c, err := ParseConstraint(v.GetString(KeyOptimization))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ModelPath:   v.GetString(KeyModel),
		DatasetPath: v.GetString(KeyDataset),
		PolicyModel: v.GetString(KeyPolicyModel),
		Constraint:  c,
		Criterion:   ParseCriterion(v.GetString(KeyCriterion)),
		Platform:    ParsePlatform(v.GetString(KeyDevice)),
		PruneAmount: v.GetFloat64(KeyPruneAmount),
		Clusters:    v.GetInt(KeyClusters),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

/*
Validate verifies the config is runnable
*/
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return xerrors.Errorf("%v is empty: %w", KeyModel, ErrBadValue)
	}
	if c.DatasetPath == "" {
		return xerrors.Errorf("%v is empty: %w", KeyDataset, ErrBadValue)
	}
	if c.PruneAmount < 0 || c.PruneAmount > 1 {
		return xerrors.Errorf("%v must be in [0,1], got %v: %w", KeyPruneAmount, c.PruneAmount, ErrBadValue)
	}
	if c.Clusters < 1 {
		return xerrors.Errorf("%v must be positive, got %v: %w", KeyClusters, c.Clusters, ErrBadValue)
	}
	return nil
}

/*
Context returns the deployment context vector of the run
*/
func (c *Config) Context() policy.Context {
	return policy.Context{Platform: c.Platform, Constraint: c.Constraint}
}

/*
Params returns transform parameters of the run
*/
func (c *Config) Params() model.Params {
	return model.Params{
		transform.ParamPruneAmount: c.PruneAmount,
		transform.ParamClusters:    float64(c.Clusters),
	}
}

func ParseConstraint(s string) (policy.Constraint, error) {
	switch strings.TrimSpace(s) {
	case "accuracy":
		return policy.Accuracy, nil
	case "latency":
		return policy.Latency, nil
	case "size":
		return policy.Size, nil
	}
	return 0, xerrors.Errorf("%v `%v`: %w", KeyOptimization, s, ErrBadValue)
}

func ParseCriterion(s string) model.Criterion {
	if strings.TrimSpace(s) == "regression" {
		return model.Regression
	}
	return model.Classification
}

func ParsePlatform(s string) policy.Platform {
	switch strings.TrimSpace(s) {
	case "GPU":
		return policy.GPU
	case "CPU":
		return policy.CPU
	case "MCU":
		return policy.MCU
	}
	return policy.Other
}

/*
SaveCompressed records the compressed model path in the configuration
artifact. Other keys keep their names, order and values.
*/
func SaveCompressed(path, compressed string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return zorros.Wrapf(err, "failed to read config %v: %v", path, err.Error())
	}
	fields, err := decodeObject(b)
	if err != nil {
		return xerrors.Errorf("failed to decode config %v: %w", path, err)
	}
	value, _ := json.Marshal(compressed)
	found := false
	for i := range fields {
		if fields[i].key == KeyCompressedModel {
			fields[i].value, found = value, true
		}
	}
	if !found {
		fields = append(fields, field{KeyCompressedModel, value})
	}
	out, err := encodeObject(fields)
	if err != nil {
		return zorros.Wrapf(err, "failed to encode config %v: %v", path, err.Error())
	}
	// the artifact is replaced only when the new content is fully written
	tmp := path + ".tmp"
	wh, err := iokit.File(tmp).Create()
	if err != nil {
		return zorros.Wrapf(err, "failed to write config %v: %v", path, err.Error())
	}
	defer wh.End()
	if _, err = wh.Write(out); err != nil {
		return zorros.Trace(err)
	}
	if err = wh.Commit(); err != nil {
		return zorros.Trace(err)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zorros.Wrapf(err, "failed to replace config %v: %v", path, err.Error())
	}
	return nil
}

type field struct {
	key   string
	value json.RawMessage
}

// decodeObject splits a top level JSON object into its fields in file order
func decodeObject(b []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, xerrors.Errorf("config is not a JSON object: %w", ErrBadValue)
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err = dec.Decode(&v); err != nil {
			return nil, err
		}
		fields = append(fields, field{tok.(string), v})
	}
	return fields, nil
}

const indent = "    "

func encodeObject(fields []field) ([]byte, error) {
	bf := &bytes.Buffer{}
	bf.WriteString("{")
	for i, f := range fields {
		if i > 0 {
			bf.WriteString(",")
		}
		k, _ := json.Marshal(f.key)
		bf.WriteString("\n" + indent)
		bf.Write(k)
		bf.WriteString(": ")
		if err := json.Indent(bf, f.value, indent, indent); err != nil {
			return nil, err
		}
	}
	if len(fields) > 0 {
		bf.WriteString("\n")
	}
	bf.WriteString("}\n")
	return bf.Bytes(), nil
}
