package pty

import (
	"sort"
	"strings"
)

// DefaultUnset lists shell startup hooks that must not leak into the child,
// otherwise a nested shell re-runs its init files.
var DefaultUnset = []string{"ENV", "BASH_ENV", "PROMPT_COMMAND"}

// BuildEnv returns the environment for the child process. Entries from base
// whose key appears in unset are removed, then set is applied on top. base is
// never modified and the parent environment is never touched.
func BuildEnv(base []string, unset []string, set map[string]string) []string {
	drop := make(map[string]struct{}, len(unset)+len(set))
	for _, k := range unset {
		drop[k] = struct{}{}
	}
	for k := range set {
		drop[k] = struct{}{}
	}

	env := make([]string, 0, len(base)+len(set))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := drop[key]; ok {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+set[k])
	}
	return env
}

// Lookup returns the value of key in env, last entry wins.
func Lookup(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
