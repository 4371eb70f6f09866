package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
)

// consoleJS builds a console object whose methods forward to __console.
const consoleJS = `
(function() {
	function format(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.name + ': ' + arg.message;
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return '[object Object]'; }
		}
		return String(arg);
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(format(arguments[j]));
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	con.trace = con.debug;
	con.assert = function(cond) {
		if (cond) return;
		var args = Array.prototype.slice.call(arguments, 1);
		con.error.apply(null, ['Assertion failed'].concat(args));
	};
	var counters = {};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) {
		counters[label || 'default'] = 0;
	};
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with one that reports to
// host.Console.
func SetupConsole(rt core.JSRuntime, host *Host) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		if host.Console != nil {
			host.Console(level, message)
		}
	}); err != nil {
		return fmt.Errorf("registering __console: %w", err)
	}
	return rt.Eval(consoleJS)
}
