package takeover

import (
	"encoding/json"
	"fmt"

	"github.com/mantra-hq/mantra/internal/jsonc"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// rawServerEntry is the vendor-agnostic shape every JSON adapter's server
// entries decode into: either a stdio command or an HTTP URL, never both.
type rawServerEntry struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (e rawServerEntry) toTransport() mcpmodel.Transport {
	if e.Command != "" {
		return mcpmodel.Transport{Kind: mcpmodel.TransportStdio, Command: e.Command, Args: e.Args, Env: e.Env}
	}
	return mcpmodel.Transport{Kind: mcpmodel.TransportHTTP, URL: e.URL, Headers: e.Headers}
}

func entryFromTransport(t mcpmodel.Transport) rawServerEntry {
	if t.Kind == mcpmodel.TransportStdio {
		return rawServerEntry{Command: t.Command, Args: t.Args, Env: t.Env}
	}
	return rawServerEntry{URL: t.URL, Headers: t.Headers}
}

// decodeJSONRoot strips JSONC comments and decodes content into a generic
// map, the shape every adapter's InjectGateway mutates a single key of
// rather than re-marshaling the vendor's full (possibly partially unknown)
// schema from typed structs.
func decodeJSONRoot(content []byte) (map[string]interface{}, error) {
	if len(content) == 0 {
		return map[string]interface{}{}, nil
	}
	clean := jsonc.Clean(content)
	root := map[string]interface{}{}
	if err := json.Unmarshal(clean, &root); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return root, nil
}

// serversUnderKey reads configKey's object value out of root as a set of
// rawServerEntry, tolerating a missing or wrong-shaped key (an empty map).
func serversUnderKey(root map[string]interface{}, configKey string) (map[string]rawServerEntry, error) {
	raw, ok := root[configKey]
	if !ok {
		return map[string]rawServerEntry{}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-marshal %s: %w", configKey, err)
	}
	entries := map[string]rawServerEntry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode %s entries: %w", configKey, err)
	}
	return entries, nil
}

func detectedFromEntries(entries map[string]rawServerEntry, path string, scope mcpmodel.Scope) []DetectedService {
	out := make([]DetectedService, 0, len(entries))
	for name, e := range entries {
		out = append(out, DetectedService{
			Name:       name,
			Transport:  e.toTransport(),
			SourcePath: path,
			Scope:      scope,
		})
	}
	return out
}

// parseJSONConfigKey is the Parse implementation shared by every
// single-file JSON adapter (Cursor, Gemini, and Claude's project/user
// scopes): decode, pull out configKey, report detected services.
func parseJSONConfigKey(adapterID, configKey, path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error) {
	root, err := decodeJSONRoot(content)
	if err != nil {
		return DetectedConfig{AdapterID: adapterID, Path: path, Scope: scope, ParseError: err.Error()}, nil
	}
	entries, err := serversUnderKey(root, configKey)
	if err != nil {
		return DetectedConfig{AdapterID: adapterID, Path: path, Scope: scope, ParseError: err.Error()}, nil
	}
	return DetectedConfig{
		AdapterID: adapterID,
		Path:      path,
		Scope:     scope,
		Services:  detectedFromEntries(entries, path, scope),
	}, nil
}

// injectJSONConfigKey rewrites configKey to contain exactly one entry,
// "mantra", pointing at the gateway, leaving every other top-level key in
// the file untouched.
func injectJSONConfigKey(current []byte, configKey string, cfg GatewayInjectionConfig) ([]byte, error) {
	root, err := decodeJSONRoot(current)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	root[configKey] = map[string]interface{}{
		"mantra": rawServerEntry{URL: cfg.URL, Headers: headers},
	}
	return json.MarshalIndent(root, "", "  ")
}
