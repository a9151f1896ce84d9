package config

import (
	_ "embed"

	"github.com/wesleyorama2/xrayperf/pkg/jsonschema"
)

//go:embed schema.json
var schemaJSON string

// configSchema checks the shape of a config document before it is decoded.
var configSchema = jsonschema.MustCompile("xrayperf.schema.json", schemaJSON)
