package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	toolerrors "github.com/3leaps/toolup/internal/errors"
)

const schemaURL = "https://3leaps.dev/schemas/toolup/config.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Validate checks cfg against the embedded JSON schema and the tool
// profile's structural rules.
func Validate(cfg *Config) error {
	sch, err := configSchema()
	if err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrInternal, "compile config schema")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrInternal, "encode configuration")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrInternal, "decode configuration")
	}
	if err := sch.Validate(inst); err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrConfig, "invalid configuration")
	}
	if err := cfg.Tool.Validate(); err != nil {
		return toolerrors.Wrap(err, toolerrors.ErrConfig, "invalid tool profile")
	}
	return nil
}
