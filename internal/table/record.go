/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package table

import (
	"reflect"
	"strings"
)

// Record is an opaque JSON object. Tables never enforce a schema on it
// (spec.md Non-goals) beyond the engine-assigned "doc_id" field.
type Record = map[string]interface{}

// Operator is one of the comparison operators of find_where_advanced.
type Operator string

const (
	Eq         Operator = "eq"
	Ne         Operator = "ne"
	Gt         Operator = "gt"
	Ge         Operator = "ge"
	Lt         Operator = "lt"
	Le         Operator = "le"
	Contains   Operator = "contains"
	StartsWith Operator = "starts_with"
	EndsWith   Operator = "ends_with"
)

// Condition is one (operator, expected-value) pair of find_where_advanced.
type Condition struct {
	Operator Operator
	Value    interface{}
}

func cloneRecord(src Record) Record {
	out := make(Record, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// stripSystemDocID removes any caller-supplied top-level "doc_id" and
// any "data.doc_id" — doc_id is always system-assigned.
func stripSystemDocID(rec Record) {
	delete(rec, "doc_id")
	if data, ok := rec["data"].(map[string]interface{}); ok {
		delete(data, "doc_id")
	}
}

// lookupField implements the top-level-then-data lookup rule shared by
// find_where and find_where_advanced: a field matches at the record's
// top level, or else inside its "data" object if that's present.
func lookupField(rec Record, field string) (interface{}, bool) {
	if v, ok := rec[field]; ok {
		return v, true
	}
	if data, ok := rec["data"].(map[string]interface{}); ok {
		if v, ok := data[field]; ok {
			return v, true
		}
	}
	return nil, false
}

// matchEquality reports whether rec satisfies every (field, expected)
// pair in criteria under deep JSON equality.
func matchEquality(rec Record, criteria map[string]interface{}) bool {
	for field, expected := range criteria {
		actual, ok := lookupField(rec, field)
		if !ok {
			return false
		}
		if !reflect.DeepEqual(actual, expected) {
			return false
		}
	}
	return true
}

// matchAdvanced reports whether rec satisfies every (field, condition)
// pair in criteria per the operator table of spec.md §4.3.6.
func matchAdvanced(rec Record, criteria map[string]Condition) bool {
	for field, cond := range criteria {
		actual, ok := lookupField(rec, field)
		if !ok {
			return false
		}
		if !evalCondition(actual, cond) {
			return false
		}
	}
	return true
}

func evalCondition(actual interface{}, cond Condition) bool {
	switch cond.Operator {
	case Eq:
		return reflect.DeepEqual(actual, cond.Value)
	case Ne:
		return !reflect.DeepEqual(actual, cond.Value)
	case Gt, Ge, Lt, Le:
		if af, aok := asFloat64(actual); aok {
			if bf, bok := asFloat64(cond.Value); bok {
				return compareFloat(cond.Operator, af, bf)
			}
			return false
		}
		if as, aok := actual.(string); aok {
			if bs, bok := cond.Value.(string); bok {
				return compareString(cond.Operator, as, bs)
			}
		}
		return false
	case Contains:
		if as, aok := actual.(string); aok {
			if bs, bok := cond.Value.(string); bok {
				return strings.Contains(as, bs)
			}
			return false
		}
		if arr, aok := actual.([]interface{}); aok {
			for _, item := range arr {
				if reflect.DeepEqual(item, cond.Value) {
					return true
				}
			}
			return false
		}
		return false
	case StartsWith:
		as, aok := actual.(string)
		bs, bok := cond.Value.(string)
		if !aok || !bok {
			return false
		}
		return strings.HasPrefix(as, bs)
	case EndsWith:
		as, aok := actual.(string)
		bs, bok := cond.Value.(string)
		if !aok || !bok {
			return false
		}
		return strings.HasSuffix(as, bs)
	default:
		return false
	}
}

func compareFloat(op Operator, a, b float64) bool {
	switch op {
	case Gt:
		return a > b
	case Ge:
		return a >= b
	case Lt:
		return a < b
	case Le:
		return a <= b
	}
	return false
}

func compareString(op Operator, a, b string) bool {
	switch op {
	case Gt:
		return a > b
	case Ge:
		return a >= b
	case Lt:
		return a < b
	case Le:
		return a <= b
	}
	return false
}

// asFloat64 coerces the JSON numeric types we might see (float64 from
// encoding/json, plus the plain Go numeric kinds a caller building
// criteria programmatically might pass) to a double for comparison.
func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
