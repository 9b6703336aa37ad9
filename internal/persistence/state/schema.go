package state

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// stateSchema is the structural contract for v3-sparse files, checked
// before any of the document is applied.
const stateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "step_count", "cells"],
  "properties": {
    "version": {"const": "v3-sparse"},
    "step_count": {"type": "integer", "minimum": 0},
    "params": {"type": "object"},
    "cells": {
      "type": "object",
      "patternProperties": {
        "^-?[0-9]+:-?[0-9]+$": {
          "type": "object",
          "required": ["charge", "valence", "kind"],
          "properties": {
            "charge": {"type": "number", "minimum": 0, "maximum": 1},
            "valence": {"type": "number", "minimum": -1, "maximum": 1},
            "kind": {"enum": ["concept", "axon", "interstitial"]},
            "owners": {"type": "array", "items": {"type": "string"}},
            "last_step": {"type": "integer", "minimum": 0},
            "last_active_step": {"type": "integer", "minimum": 0},
            "neighbors": {
              "type": "object",
              "patternProperties": {
                "^-?[0-9]+:-?[0-9]+$": {
                  "type": "object",
                  "required": ["weight"],
                  "properties": {
                    "weight": {"type": "number", "minimum": 0},
                    "crystallized": {"type": "boolean"}
                  }
                }
              },
              "additionalProperties": false
            }
          }
        }
      },
      "additionalProperties": false
    },
    "concepts": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["center", "r"],
        "properties": {
          "center": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2},
          "r": {"type": "integer", "minimum": 0},
          "tags": {"type": "array", "items": {"type": "string"}},
          "charge": {"type": "number"}
        }
      }
    },
    "associations": {"type": "object"}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func validateV3(raw []byte) error {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("state.schema.json", stateSchema)
	})
	if schemaErr != nil {
		return schemaErr
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
