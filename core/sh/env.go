package sh

import (
	"sort"
	"strings"
	"sync"
)

// Env is a mutable set of environment variables. It is safe for concurrent
// use; sessions share it between the interactive loop and running commands.
type Env struct {
	mtx  sync.RWMutex
	vars map[string]string
}

// NewEnv returns an empty environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]string)}
}

// EnvFromList builds an environment from "key=value" pairs, such as
// os.Environ(). Malformed entries without an equals sign are dropped.
func EnvFromList(environ []string) *Env {
	env := NewEnv()
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env.vars[key] = value
	}
	return env
}

// Get returns the value of key, or "" when unset.
func (e *Env) Get(key string) string {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.vars[key]
}

// Lookup returns the value of key and whether it was set, distinguishing
// unset from empty.
func (e *Env) Lookup(key string) (string, bool) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	value, ok := e.vars[key]
	return value, ok
}

// Set assigns key to value. Empty keys are ignored.
func (e *Env) Set(key, value string) {
	if key == "" {
		return
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.vars[key] = value
}

// Unset removes key.
func (e *Env) Unset(key string) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	delete(e.vars, key)
}

// Environ renders the environment as sorted "key=value" pairs for handing
// to a child process.
func (e *Env) Environ() []string {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	out := make([]string, 0, len(e.vars))
	for key, value := range e.vars {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (e *Env) Clone() *Env {
	e.mtx.RLock()
	defer e.mtx.RUnlock()

	clone := NewEnv()
	for key, value := range e.vars {
		clone.vars[key] = value
	}
	return clone
}
