package sh

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/anmitsu/go-shlex"
)

// splitArgs separates the variadic invocation arguments into positional
// values and a merged Kwargs map. Multiple Kwargs values are allowed; later
// maps override earlier ones key by key.
func splitArgs(args []interface{}) ([]interface{}, Kwargs) {
	positional := make([]interface{}, 0, len(args))
	kwargs := Kwargs{}
	for _, a := range args {
		if kw, ok := a.(Kwargs); ok {
			for k, v := range kw {
				kwargs[k] = v
			}
			continue
		}
		positional = append(positional, a)
	}
	return positional, kwargs
}

// flattenPositional expands slice and array values one level deep, so a
// []string of filenames can be passed directly. Byte slices stay whole and
// compile as strings.
func flattenPositional(args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args))
	for _, a := range args {
		if _, isBytes := a.([]byte); isBytes || a == nil {
			out = append(out, a)
			continue
		}
		rv := reflect.ValueOf(a)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				out = append(out, rv.Index(i).Interface())
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func stringify(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// formatValue wraps a value in plain double quotes. Escaping inside the
// value is deliberately left to the caller; see unbalancedQuoteError.
func formatValue(v interface{}) string {
	return `"` + stringify(v) + `"`
}

func isTrue(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

// compileArgs turns positional and named arguments into a final argument
// vector. Values are quoted, named arguments rendered as short or long
// flags, the pieces joined with spaces and re-split with shell quoting
// rules. The round trip keeps values with spaces intact while still letting
// a single positional string carry several pre-quoted arguments.
func compileArgs(positional []interface{}, named Kwargs) ([]string, error) {
	processed := make([]string, 0, len(positional)+len(named))

	for _, arg := range flattenPositional(positional) {
		processed = append(processed, formatValue(arg))
	}

	// Named arguments compile in sorted key order so identical invocations
	// always produce identical command lines.
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := named[k]
		var arg string
		if len(k) == 1 {
			// Short flag: cut(Kwargs{"d": ":"}) compiles to -d ":".
			if isTrue(v) {
				arg = "-" + k
			} else {
				arg = "-" + k + " " + formatValue(v)
			}
		} else {
			// Long flag: underscores become hyphens so no_pager turns
			// into --no-pager.
			name := strings.ReplaceAll(k, "_", "-")
			if isTrue(v) {
				arg = "--" + name
			} else {
				arg = "--" + name + "=" + formatValue(v)
			}
		}
		processed = append(processed, arg)
	}

	if len(processed) == 0 {
		return []string{}, nil
	}

	split, err := shlex.Split(strings.Join(processed, " "), true)
	if err != nil {
		if errors.Is(err, shlex.ErrNoClosing) {
			return nil, unbalancedQuoteError()
		}
		return nil, optionErrorf("cannot parse compiled arguments: %v", err)
	}
	return split, nil
}
