// Package script builds every piece of script text the host evaluates inside
// a rendering surface. Caller values are only ever embedded as JSON string
// literals, so no template can be broken out of by its arguments.
package script

import (
	"encoding/json"
	"fmt"
)

// literal renders s as a JS string literal. encoding/json escapes quotes,
// control characters, U+2028, U+2029 and the HTML-sensitive <, > and &.
func literal(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Resolve fulfills the page's pending entry for seq with payload and removes
// the entry. Nothing happens when no entry is pending under seq.
func Resolve(seq, payload string) string {
	return fmt.Sprintf(`(() => {
  const seq = %s;
  const pending = window._ipc && window._ipc[seq];
  if (!pending) return;
  try {
    pending.resolve(%s);
  } finally {
    delete window._ipc[seq];
  }
})();`, literal(seq), literal(payload))
}

// Reject rejects the page's pending entry for seq with an Error carrying
// message and removes the entry.
func Reject(seq, message string) string {
	return fmt.Sprintf(`(() => {
  const seq = %s;
  const pending = window._ipc && window._ipc[seq];
  if (!pending) return;
  try {
    pending.reject(new Error(%s));
  } finally {
    delete window._ipc[seq];
  }
})();`, literal(seq), literal(message))
}

// DialogResult resolves a pending picker request with the chosen path.
func DialogResult(seq, result string) string {
	return Resolve(seq, result)
}

// Emit dispatches a CustomEvent named event on window. data is percent
// encoded JSON; when it does not decode the page logs an error and no event
// is built.
func Emit(event, data string) string {
	return fmt.Sprintf(`(() => {
  let detail;
  try {
    detail = JSON.parse(decodeURIComponent(%s));
  } catch (err) {
    console.error(`+"`Unable to parse event data for ${%s}: ${err}`"+`);
    return;
  }
  const event = new window.CustomEvent(%s, { detail });
  window.dispatchEvent(event);
})();`, literal(data), literal(event), literal(event))
}

// ResolveToRenderProcess settles a pending entry through the page client's
// _ipc.resolve. value must already be percent encoded. A state of "0"
// resolves, anything else rejects.
func ResolveToRenderProcess(seq, state, value string) string {
	return fmt.Sprintf(`(() => {
  if (window._ipc && typeof window._ipc.resolve === 'function') {
    window._ipc.resolve(%s, %s, %s);
  }
})();`, literal(seq), literal(state), literal(value))
}

// BindingInit exposes a binding as window.system[name] so page code can call
// it as a promise-returning function.
func BindingInit(name string) string {
	return fmt.Sprintf(`(() => {
  const name = %s;
  window.system = window.system || {};
  window.system[name] = value => window._ipc.send(name, value);
})();`, literal(name))
}

