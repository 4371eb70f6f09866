package script

import (
	"encoding/json"
	"fmt"
)

// MessagePrefix is the unused leading field of every envelope the page
// client posts: ipc;<seq>;<name>;<json>.
const MessagePrefix = "ipc"

// PreloadOptions is the page-visible part of a window's configuration.
type PreloadOptions struct {
	Argv     []string          `json:"argv"`
	Cwd      string            `json:"cwd"`
	Debug    bool              `json:"debug"`
	Headless bool              `json:"headless"`
	Test     bool              `json:"test"`
	Env      string            `json:"env"`
	Config   map[string]string `json:"config"`
}

const preloadTemplate = `(() => {
  const args = JSON.parse(%s);
  Object.freeze(args.argv);
  Object.freeze(args.config);
  window.__args = Object.freeze(args);

  const ipc = window._ipc = window._ipc || {};
  let nextSeq = 0;

  ipc.send = (name, value) => new Promise((resolve, reject) => {
    const seq = String(++nextSeq);
    let payload;
    try {
      payload = JSON.stringify(value === undefined ? null : value);
    } catch (err) {
      reject(err);
      return;
    }
    ipc[seq] = { resolve, reject };
    window.__ipcPost(%s + ';' + seq + ';' + name + ';' + payload);
  });

  ipc.resolve = (seq, state, value) => {
    const pending = ipc[seq];
    if (!pending) return;
    delete ipc[seq];
    let data = decodeURIComponent(value);
    try {
      data = JSON.parse(data);
    } catch (_) {}
    if (String(state) === '0') {
      pending.resolve(data);
    } else {
      pending.reject(data instanceof Error ? data : new Error(String(data)));
    }
  };

  window.system = window.system || {};
})();`

// Preload returns the script injected before any page content. It freezes
// the window configuration into window.__args and installs the IPC client
// (window._ipc) that page code and binding stubs use to call the host.
// Outside debug mode the result is minified.
func Preload(opts PreloadOptions) (string, error) {
	if opts.Argv == nil {
		opts.Argv = []string{}
	}
	if opts.Config == nil {
		opts.Config = map[string]string{}
	}
	args, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("encoding preload options: %w", err)
	}
	src := fmt.Sprintf(preloadTemplate, literal(string(args)), literal(MessagePrefix))
	if opts.Debug {
		return src, nil
	}
	return Minify(src)
}

// SocketClient connects a browser page to the host over a websocket at url.
// Outbound envelopes are buffered until the socket opens; every inbound frame
// is script text evaluated in the page.
func SocketClient(url string) string {
	return fmt.Sprintf(`(() => {
  const queue = [];
  const socket = new WebSocket(new URL(%s, window.location.href).href.replace(/^http/, 'ws'));
  window.__ipcPost = message => {
    if (socket.readyState === WebSocket.OPEN) {
      socket.send(message);
    } else {
      queue.push(message);
    }
  };
  socket.addEventListener('open', () => {
    while (queue.length) socket.send(queue.shift());
  });
  socket.addEventListener('message', event => {
    (0, eval)(event.data);
  });
})();`, literal(url))
}
