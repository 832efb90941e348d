package sh

import (
	"sort"
	"strings"
)

// Kwargs carries the named part of an invocation. Keys without a leading
// underscore become long or short program flags; keys with a leading
// underscore are call options directing how the process is run:
//
//	cmd.Invoke("pattern", sh.Kwargs{"n": true})             // grep -n pattern
//	cmd.Invoke("pattern", sh.Kwargs{"_out": "hits.txt"})    // redirect stdout
type Kwargs map[string]interface{}

// Call options understood by the engine. Anything else with a leading
// underscore is rejected so typos fail loudly instead of turning into
// program flags.
const (
	optFg       = "_fg"
	optBg       = "_bg"
	optWith     = "_with"
	optIn       = "_in"
	optOut      = "_out"
	optErr      = "_err"
	optErrToOut = "_err_to_out"
	optBufsize  = "_bufsize"
	optPiped    = "_piped"
	optFor      = "_for"
)

var callOptionNames = map[string]struct{}{
	optFg:       {},
	optBg:       {},
	optWith:     {},
	optIn:       {},
	optOut:      {},
	optErr:      {},
	optErrToOut: {},
	optBufsize:  {},
	optPiped:    {},
	optFor:      {},
}

// incompatiblePairs lists options that cannot appear in the same
// invocation, even across baked and per-call arguments.
var incompatiblePairs = [][2]string{
	{optFg, optBg},
	{optErr, optErrToOut},
	{optPiped, optFor},
}

// callOptions is the merged, typed view of every underscore option for one
// invocation.
type callOptions struct {
	fg       bool
	bg       bool
	with     bool
	in       interface{}
	out      interface{}
	err      interface{}
	errToOut bool
	bufSize  int
	piped    bool
	forIter  bool
}

func defaultCallOptions() *callOptions {
	// Line-buffered output unless the caller says otherwise.
	return &callOptions{bufSize: 1}
}

// partitionKwargs splits kwargs into call options and named program
// arguments. Unrecognized underscore keys are an error.
func partitionKwargs(kwargs Kwargs) (opts Kwargs, named Kwargs, err error) {
	opts = Kwargs{}
	named = Kwargs{}
	for k, v := range kwargs {
		if !strings.HasPrefix(k, "_") {
			named[k] = v
			continue
		}
		if _, ok := callOptionNames[k]; !ok {
			return nil, nil, optionErrorf("unrecognized call option %q", k)
		}
		opts[k] = v
	}
	return opts, named, nil
}

// mergeOptions overlays per-call options onto baked ones; the per-call value
// wins for keys present in both.
func mergeOptions(baked, call Kwargs) Kwargs {
	merged := make(Kwargs, len(baked)+len(call))
	for k, v := range baked {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}
	return merged
}

// validateOptionPairs rejects invocations that name both halves of an
// incompatible pair. Presence is what matters: explicitly passing
// "_fg": false alongside "_bg": true is still ambiguous enough to refuse.
func validateOptionPairs(provided Kwargs) error {
	for _, pair := range incompatiblePairs {
		_, hasA := provided[pair[0]]
		_, hasB := provided[pair[1]]
		if hasA && hasB {
			return incompatibleOptions(pair[0], pair[1])
		}
	}
	return nil
}

// buildCallOptions types the merged option map, rejecting values of the
// wrong kind.
func buildCallOptions(merged Kwargs) (*callOptions, error) {
	opts := defaultCallOptions()

	// Deterministic error order regardless of map iteration.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := merged[k]
		switch k {
		case optFg:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.fg = b
		case optBg:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.bg = b
		case optWith:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.with = b
		case optErrToOut:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.errToOut = b
		case optPiped:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.piped = b
		case optFor:
			b, err := optionBool(k, v)
			if err != nil {
				return nil, err
			}
			opts.forIter = b
		case optBufsize:
			n, ok := v.(int)
			if !ok {
				return nil, optionErrorf("option %q expects an int, got %T", k, v)
			}
			if n < 0 {
				return nil, optionErrorf("option %q must not be negative", k)
			}
			opts.bufSize = n
		case optIn:
			opts.in = v
		case optOut:
			opts.out = v
		case optErr:
			opts.err = v
		}
	}
	return opts, nil
}

func optionBool(key string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, optionErrorf("option %q expects a bool, got %T", key, v)
	}
	return b, nil
}
