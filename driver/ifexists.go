package driver

import (
	"fmt"
	"strings"
)

type (
	// IfExists says what to do when the destination already exists.
	IfExists struct {
		mode     ifExistsMode
		upsertOn []string
	}

	ifExistsMode int

	// IfExistsFeatures is the set of IfExists modes a driver supports.
	IfExistsFeatures uint
)

const (
	ifExistsError ifExistsMode = iota
	ifExistsAppend
	ifExistsOverwrite
	ifExistsUpsert
)

// IfExists modes as feature bits.
const (
	IfExistsFeatureError IfExistsFeatures = 1 << iota
	IfExistsFeatureAppend
	IfExistsFeatureOverwrite
	IfExistsFeatureUpsert
)

// Constructors for the non-parameterized modes.
var (
	IfExistsError     = IfExists{mode: ifExistsError}
	IfExistsAppend    = IfExists{mode: ifExistsAppend}
	IfExistsOverwrite = IfExists{mode: ifExistsOverwrite}
)

// IfExistsUpsertOn merges on the given key columns.
func IfExistsUpsertOn(cols ...string) IfExists {
	return IfExists{mode: ifExistsUpsert, upsertOn: cols}
}

// ParseIfExists parses an --if-exists value.
func ParseIfExists(s string) (IfExists, error) {
	switch {
	case s == "error":
		return IfExistsError, nil
	case s == "append":
		return IfExistsAppend, nil
	case s == "overwrite":
		return IfExistsOverwrite, nil
	case strings.HasPrefix(s, "upsert-on:"):
		cols := strings.Split(strings.TrimPrefix(s, "upsert-on:"), ",")
		for _, c := range cols {
			if c == "" {
				return IfExists{}, fmt.Errorf("driver: empty column name in --if-exists=%q", s)
			}
		}
		return IfExistsUpsertOn(cols...), nil
	default:
		return IfExists{}, fmt.Errorf("driver: unknown --if-exists value %q", s)
	}
}

// IsError reports the error mode.
func (ie IfExists) IsError() bool { return ie.mode == ifExistsError }

// IsAppend reports the append mode.
func (ie IfExists) IsAppend() bool { return ie.mode == ifExistsAppend }

// IsOverwrite reports the overwrite mode.
func (ie IfExists) IsOverwrite() bool { return ie.mode == ifExistsOverwrite }

// UpsertOn returns the upsert key columns, or nil for other modes.
func (ie IfExists) UpsertOn() []string {
	if ie.mode != ifExistsUpsert {
		return nil
	}
	return ie.upsertOn
}

// Feature returns the feature bit this mode requires.
func (ie IfExists) Feature() IfExistsFeatures {
	switch ie.mode {
	case ifExistsAppend:
		return IfExistsFeatureAppend
	case ifExistsOverwrite:
		return IfExistsFeatureOverwrite
	case ifExistsUpsert:
		return IfExistsFeatureUpsert
	default:
		return IfExistsFeatureError
	}
}

// Verify checks this mode against a driver's declared IfExists support.
func (ie IfExists) Verify(features IfExistsFeatures) error {
	if features&ie.Feature() == 0 {
		return fmt.Errorf("driver: destination does not support --if-exists=%s", ie)
	}
	return nil
}

func (ie IfExists) String() string {
	switch ie.mode {
	case ifExistsAppend:
		return "append"
	case ifExistsOverwrite:
		return "overwrite"
	case ifExistsUpsert:
		return "upsert-on:" + strings.Join(ie.upsertOn, ",")
	default:
		return "error"
	}
}

// String renders the supported modes for the features listing.
func (f IfExistsFeatures) String() string {
	var out []string
	if f&IfExistsFeatureError != 0 {
		out = append(out, "error")
	}
	if f&IfExistsFeatureAppend != 0 {
		out = append(out, "append")
	}
	if f&IfExistsFeatureOverwrite != 0 {
		out = append(out, "overwrite")
	}
	if f&IfExistsFeatureUpsert != 0 {
		out = append(out, "upsert-on:COL[,COL...]")
	}
	return strings.Join(out, " ")
}
