package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/morezero/native-bridge/pkg/bootstrap"
	"github.com/morezero/native-bridge/pkg/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.reg.Health(ctx, s.probes)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// capabilitiesOutput is the /capabilities response.
type capabilitiesOutput struct {
	BridgeVersion   string               `json:"bridgeVersion"`
	Manifest        string               `json:"manifest"`
	ManifestVersion string               `json:"manifestVersion,omitempty"`
	Disabled        []string             `json:"disabled"`
	Capabilities    []registry.EntryInfo `json:"capabilities"`
}

func (s *Server) capabilities() *capabilitiesOutput {
	return &capabilitiesOutput{
		BridgeVersion:   bootstrap.BridgeVersion,
		Manifest:        s.manifest.Name(),
		ManifestVersion: s.manifest.Version(),
		Disabled:        s.manifest.Disabled(),
		Capabilities:    s.reg.List(),
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.capabilities())
}

// homePageTemplate is the HTML for the bridge status page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Native Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Native Bridge</h1>
  <p class="meta">Bridge {{.Capabilities.BridgeVersion}}, manifest {{.Capabilities.Manifest}}{{if .Capabilities.ManifestVersion}}@{{.Capabilities.ManifestVersion}}{{end}}, up {{.Uptime}}. WebSocket endpoint <code>{{.WSPath}}</code>.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    {{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Channels</h2>
    {{if not .Channels}}
    <p>No open channels.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Channel</th><th>Pending</th><th>Delivered</th><th>Duplicates</th><th>Dropped</th></tr>
      </thead>
      <tbody>
        {{range .Channels}}
        <tr><td>{{.Name}}</td><td>{{.Pending}}</td><td>{{.Stats.Delivered}}</td><td>{{.Stats.Duplicates}}</td><td>{{.Stats.Dropped}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Capabilities</h2>
    <p>Total capabilities: <span class="stat">{{len .Capabilities.Capabilities}}</span></p>
    {{if .Capabilities.Disabled}}<p>Disabled by manifest: {{range .Capabilities.Disabled}}<code>{{.}}</code> {{end}}</p>{{end}}
    {{if not .Capabilities.Capabilities}}
    <p>No capabilities registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Namespace</th><th>Command</th><th>Variant</th></tr>
      </thead>
      <tbody>
        {{range .Capabilities.Capabilities}}
        <tr><td>{{.Namespace}}</td><td>{{.Command}}</td><td>{{.Variant}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health       *registry.HealthOutput
	Capabilities *capabilitiesOutput
	Channels     []channelStatus
	Uptime       time.Duration
	WSPath       string
}

// handleHome returns an HTTP handler for the bridge status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		channels := s.openChannels()
		sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

		data := homeData{
			Health:       s.reg.Health(ctx, s.probes),
			Capabilities: s.capabilities(),
			Channels:     channels,
			Uptime:       time.Since(s.started).Truncate(time.Second),
			WSPath:       s.cfg.WSPath,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
