// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	errExpectedPointerToStruct = errors.New("expected a pointer to a struct")
	errUnsupportedFieldType    = errors.New("unsupported field type")
)

var durationType = reflect.TypeFor[time.Duration]()

// readEnv fills every field of the struct target points to that carries an
// `env` tag from the matching environment variable. Untagged struct fields
// are walked recursively.
//
// A field that already holds a value is only replaced when the tag has the
// "overwrite" option, so secrets from the YAML file win over a blank shell.
func readEnv(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", errExpectedPointerToStruct, target)
	}

	return readEnvStruct(v.Elem())
}

func readEnvStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field, sf := v.Field(i), t.Field(i)
		if !field.CanSet() {
			continue
		}

		tag, tagged := sf.Tag.Lookup("env")
		if !tagged {
			if field.Kind() == reflect.Struct {
				if err := readEnvStruct(field); err != nil {
					return err
				}
			}

			continue
		}

		name, options, _ := strings.Cut(tag, ",")

		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		if !field.IsZero() && !slices.Contains(strings.Split(options, ","), "overwrite") {
			continue
		}

		if err := setFromString(field, value); err != nil {
			return fmt.Errorf("%s (field %s): %w", name, sf.Name, err)
		}
	}

	return nil
}

// setFromString parses value into field according to the field's type.
// Slices of strings are comma separated with blanks dropped.
func setFromString(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		field.SetInt(int64(d))

	case field.CanInt():
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetInt(n)

	case field.CanFloat():
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetFloat(f)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		field.SetBool(b)

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		items := []string{}

		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}

		field.Set(reflect.ValueOf(items).Convert(field.Type()))

	default:
		return fmt.Errorf("%w: %s", errUnsupportedFieldType, field.Type())
	}

	return nil
}

// legacyEnvAliases maps the unprefixed variable names of older deployments
// onto their QUICKAI_ counterparts.
var legacyEnvAliases = map[string]string{
	"PORT":                  "QUICKAI_PORT",
	"DATABASE_URL":          "QUICKAI_DATABASE_URL",
	"GEMINI_API_KEY":        "QUICKAI_GEMINI_API_KEYS",
	"CLIPDROP_API_KEY":      "QUICKAI_CLIPDROP_API_KEY",
	"CLOUDINARY_CLOUD_NAME": "QUICKAI_CLOUDINARY_CLOUD_NAME",
	"CLOUDINARY_API_KEY":    "QUICKAI_CLOUDINARY_API_KEY",
	"CLOUDINARY_API_SECRET": "QUICKAI_CLOUDINARY_API_SECRET",
	"CLERK_SECRET_KEY":      "QUICKAI_CLERK_SECRET_KEY",
}

// applyLegacyEnv copies legacy variables into their QUICKAI_ names unless
// the QUICKAI_ name is already set.
func applyLegacyEnv() {
	for legacy, current := range legacyEnvAliases {
		value, ok := os.LookupEnv(legacy)
		if !ok || value == "" {
			continue
		}

		if _, set := os.LookupEnv(current); set {
			continue
		}

		if err := os.Setenv(current, value); err != nil {
			log.Warn().Err(err).Str("key", current).Msg("Could not set environment variable")

			continue
		}

		log.Debug().Str("from", legacy).Str("to", current).Msg("Using legacy environment variable")
	}
}
