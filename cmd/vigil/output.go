// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"os"
	"reflect"

	"github.com/spf13/pflag"
)

// jsonOutput adds --json output support to a command's parameter
// struct. Embed it, call register from the command's Flags func, and
// in Run:
//
//	if done, err := params.emitJSON(result); done {
//	    return err
//	}
//	// ... text formatting ...
type jsonOutput struct {
	enabled bool
}

func (j *jsonOutput) register(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&j.enabled, "json", false, "output as JSON")
}

// emitJSON writes result as indented JSON to stdout if --json is set.
// Returns (true, nil) on success, (true, err) on write failure, or
// (false, nil) when --json is not set and the caller should proceed
// with text formatting.
//
// Nil slices are normalized to empty slices before serialization, so
// callers never need to guard against null JSON output.
func (j *jsonOutput) emitJSON(result any) (bool, error) {
	if !j.enabled {
		return false, nil
	}
	return true, writeJSON(normalizeNilSlice(result))
}

// writeJSON marshals value as indented JSON and writes it to stdout.
func writeJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice, so that JSON serialization produces [] instead of
// null. Returns value unchanged for all other types.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
