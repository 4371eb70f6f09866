package webapi

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
)

// domJS defines Event, EventTarget, CustomEvent, ErrorEvent and DOMException,
// then turns globalThis into the page's window.
const domJS = `
if (typeof globalThis.performance === 'undefined') {
	const origin = Date.now();
	globalThis.performance = { timeOrigin: origin, now: () => Date.now() - origin };
}
if (typeof globalThis.queueMicrotask !== 'function') {
	globalThis.queueMicrotask = fn => { Promise.resolve().then(fn); };
}

class Event {
	constructor(type, options) {
		this.type = String(type);
		this.bubbles = !!(options && options.bubbles);
		this.cancelable = !!(options && options.cancelable);
		this.defaultPrevented = false;
		this.target = null;
		this.currentTarget = null;
		this.timeStamp = performance.now();
		this._stopped = false;
	}
	preventDefault() {
		if (this.cancelable) this.defaultPrevented = true;
	}
	stopPropagation() {}
	stopImmediatePropagation() {
		this._stopped = true;
	}
}

class EventTarget {
	constructor() {
		Object.defineProperty(this, '_listeners', { value: {}, writable: true });
	}
	addEventListener(type, callback, options) {
		if (typeof callback !== 'function' && !(callback && typeof callback.handleEvent === 'function')) return;
		const list = this._listeners[type] || (this._listeners[type] = []);
		if (list.some(l => l.callback === callback)) return;
		const once = typeof options === 'object' && options !== null && !!options.once;
		list.push({ callback, once });
	}
	removeEventListener(type, callback) {
		if (!this._listeners[type]) return;
		this._listeners[type] = this._listeners[type].filter(l => l.callback !== callback);
	}
	dispatchEvent(event) {
		event.target = this;
		event.currentTarget = this;
		const handler = this['on' + event.type];
		const listeners = (this._listeners[event.type] || []).slice();
		if (typeof handler === 'function') listeners.unshift({ callback: handler });
		for (const entry of listeners) {
			if (entry.once) this.removeEventListener(event.type, entry.callback);
			try {
				if (typeof entry.callback === 'function') {
					entry.callback.call(this, event);
				} else {
					entry.callback.handleEvent(event);
				}
			} catch (err) {
				if (event.type !== 'error' && typeof globalThis.reportError === 'function') {
					globalThis.reportError(err);
				} else {
					console.error(err);
				}
			}
			if (event._stopped) break;
		}
		event.currentTarget = null;
		return !event.defaultPrevented;
	}
}

class CustomEvent extends Event {
	constructor(type, init) {
		super(type, init);
		this.detail = (init && init.detail !== undefined) ? init.detail : null;
	}
}

class ErrorEvent extends Event {
	constructor(type, init) {
		super(type, init);
		this.error = init && init.error !== undefined ? init.error : null;
		this.message = (init && init.message) || '';
		this.filename = (init && init.filename) || '';
		this.lineno = (init && init.lineno) || 0;
		this.colno = (init && init.colno) || 0;
	}
}

class DOMException extends Error {
	constructor(message, name) {
		super(message || '');
		this.name = name || 'Error';
		this.message = message || '';
		this.code = 0;
	}
}

globalThis.Event = Event;
globalThis.EventTarget = EventTarget;
globalThis.CustomEvent = CustomEvent;
globalThis.ErrorEvent = ErrorEvent;
globalThis.DOMException = DOMException;

(function() {
	Object.defineProperty(globalThis, '_listeners', { value: {}, writable: true });
	for (const method of ['addEventListener', 'removeEventListener', 'dispatchEvent']) {
		globalThis[method] = EventTarget.prototype[method].bind(globalThis);
	}
	globalThis.window = globalThis;
	globalThis.self = globalThis;

	const doc = new EventTarget();
	doc.readyState = 'loading';
	doc.title = '';
	globalThis.document = doc;

	globalThis.reportError = function(error) {
		let message = '';
		if (error !== null && error !== undefined) {
			message = error.message !== undefined ? error.message : String(error);
		}
		const event = new ErrorEvent('error', { error, message, cancelable: true });
		if (globalThis.dispatchEvent(event)) {
			console.error('Uncaught', error instanceof Error ? error : message);
		}
	};
})();
`

// SetupDOM installs the event classes and the window and document objects.
func SetupDOM(rt core.JSRuntime, host *Host) error {
	if err := rt.Eval(domJS); err != nil {
		return fmt.Errorf("evaluating dom.js: %w", err)
	}
	href, err := json.Marshal(host.Location)
	if err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(`globalThis.location = Object.freeze({ href: %s, toString() { return this.href; } });`, href))
}
