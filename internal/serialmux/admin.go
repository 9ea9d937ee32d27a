package serialmux

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/museosc/internal/httputil"
)

// consoleKeep bounds the characters kept in the console's scrollback.
const consoleKeep = 20000

var consolePage = template.Must(template.New("serial").Parse(`<!doctype html>
<html>
<head><title>serial</title></head>
<body>
<form method="post" action="send-command-api">
  <input name="command" placeholder="command" autofocus>
  <button type="submit">send</button>
</form>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
new EventSource("tail").onmessage = (e) => {
  tail.textContent = e.data + "\n" + tail.textContent.slice(0, {{.}});
};
</script>
</body>
</html>
`))

// AttachAdminRoutes registers the serial console under /debug/: a page that
// tails the device and sends commands, the API behind it, and line counters.
func AttachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Serial", func() any {
		st := s.Stats()
		return fmt.Sprintf("%d lines, %d subscribers, %d dropped", st.Lines, st.Subscribers, st.Dropped)
	})

	debug.HandleFunc("serial", "tail and send commands to the serial device", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := consolePage.Execute(w, consoleKeep); err != nil {
			http.Error(w, "failed to render console", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("serial.json", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("write %q: %v", command, err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": command})
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		streamLines(w, r, s)
	})
}

// streamLines writes one server-sent event per device line until the client
// goes away or the mux closes the subscription.
func streamLines(w http.ResponseWriter, r *http.Request, s SerialMuxInterface) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
