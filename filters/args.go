package filters

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const genArgPrefix = "_genkey_"

// GenArgKey returns the argument name assigned to the i-th positional
// argument of a shorthand definition, e.g. "_genkey_0" for the first one.
func GenArgKey(i int) string {
	return genArgPrefix + strconv.Itoa(i)
}

// IsGenArgKey reports whether name is a generated positional argument
// name.
func IsGenArgKey(name string) bool {
	return strings.HasPrefix(name, genArgPrefix)
}

func IntArg(value string) (int, error) {
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer", value)
	}
	return i, nil
}

func BoolArg(value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s is not a boolean", value)
	}
	return b, nil
}

// Converts a string argument into time.Duration using time.ParseDuration.
// Returns error if the duration is negative.
func DurationArg(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %v is negative", value)
	}
	return d, nil
}

type FilterArgs struct {
	args map[string]string
	pos  int
	used map[string]bool
	errs []error
}

// Creates a filter arguments wrapper that provides methods to access and
// convert definition arguments by name. An argument is looked up under
// its name first, falling back to the next generated positional name, so
// the same factory serves both the shorthand and the expanded definition
// form. The Err() method returns a non nil error if a required argument
// was missing, if an argument was left unconsumed or if there were
// conversion errors.
//
// Example usage:
//
//	a := Args(f.Args)
//	rate, burst, resolver, err := a.Int("replenishRate"), a.Int("burstCapacity"), a.OptionalString("keyResolver", ""), a.Err()
//	if err != nil {
//	    return err
//	}
func Args(args map[string]string) *FilterArgs {
	return &FilterArgs{args: args, used: make(map[string]bool, len(args))}
}

func (a *FilterArgs) String(name string) (_ string) {
	if v, ok := a.next(name); ok {
		return v
	}
	return
}

func (a *FilterArgs) OptionalString(name, defaultValue string) string {
	if v, ok := a.peek(name); ok {
		a.consume(v.key)
		return v.value
	}
	return defaultValue
}

// Strings returns the remaining positional arguments, or the value of the
// named argument split on commas when it is present.
func (a *FilterArgs) Strings(name string) (result []string) {
	if v, ok := a.args[name]; ok && !a.used[name] {
		a.used[name] = true
		for _, s := range strings.Split(v, ",") {
			result = append(result, strings.TrimSpace(s))
		}
		return
	}
	for {
		key := GenArgKey(a.pos)
		v, ok := a.args[key]
		if !ok {
			return
		}
		a.used[key] = true
		a.pos++
		result = append(result, v)
	}
}

func (a *FilterArgs) Int(name string) (_ int) {
	if v, ok := a.next(name); ok {
		if i, err := IntArg(v); err == nil {
			return i
		} else {
			a.error(err)
		}
	}
	return
}

func (a *FilterArgs) OptionalInt(name string, defaultValue int) int {
	if _, ok := a.peek(name); !ok {
		return defaultValue
	}
	return a.Int(name)
}

func (a *FilterArgs) Bool(name string) (_ bool) {
	if v, ok := a.next(name); ok {
		if b, err := BoolArg(v); err == nil {
			return b
		} else {
			a.error(err)
		}
	}
	return
}

func (a *FilterArgs) OptionalBool(name string, defaultValue bool) bool {
	if _, ok := a.peek(name); !ok {
		return defaultValue
	}
	return a.Bool(name)
}

func (a *FilterArgs) Duration(name string) (_ time.Duration) {
	if v, ok := a.next(name); ok {
		if d, err := DurationArg(v); err == nil {
			return d
		} else {
			a.error(err)
		}
	}
	return
}

func (a *FilterArgs) OptionalDuration(name string, defaultValue time.Duration) time.Duration {
	if _, ok := a.peek(name); !ok {
		return defaultValue
	}
	return a.Duration(name)
}

func (a *FilterArgs) Err() error {
	var errs []string
	for _, err := range a.errs {
		errs = append(errs, err.Error())
	}

	var unused []string
	for key := range a.args {
		if !a.used[key] {
			unused = append(unused, key)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		errs = append(errs, fmt.Sprintf("unknown arguments: %s", strings.Join(unused, ", ")))
	}

	if len(errs) == 0 {
		return nil
	} else {
		return errors.New(strings.Join(errs, ", "))
	}
}

type foundArg struct {
	key   string
	value string
}

// peek finds the argument under name or under the next generated
// positional name without consuming it.
func (a *FilterArgs) peek(name string) (foundArg, bool) {
	if v, ok := a.args[name]; ok && !a.used[name] {
		return foundArg{key: name, value: v}, true
	}
	key := GenArgKey(a.pos)
	if v, ok := a.args[key]; ok && !a.used[key] {
		return foundArg{key: key, value: v}, true
	}
	return foundArg{}, false
}

func (a *FilterArgs) consume(key string) {
	a.used[key] = true
	if IsGenArgKey(key) {
		a.pos++
	}
}

func (a *FilterArgs) next(name string) (string, bool) {
	v, ok := a.peek(name)
	if !ok {
		a.error(fmt.Errorf("missing argument %s", name))
		return "", false
	}
	a.consume(v.key)
	return v.value, true
}

func (a *FilterArgs) error(err error) {
	a.errs = append(a.errs, err)
}
