package takeover

import (
	"fmt"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
	"github.com/mantra-hq/mantra/internal/storage"
)

// ImportPreview is what the user reviews before confirming an import: every
// detected service's merge classification, the env vars it would need, and
// any files that couldn't be scanned.
type ImportPreview struct {
	Classified  []ClassifiedService
	EnvVarNeeds []string
	ParseErrors []DetectedConfig
}

// GenerateImportPreview scans projectPath (adapterID == "" scans every
// registered adapter for the full-tool takeover; a non-empty adapterID
// restricts the scan to one vendor) and classifies what it finds against
// the service store.
func GenerateImportPreview(registry *Registry, store *storage.Store, projectPath, adapterID string, envStored map[string]bool) (*ImportPreview, error) {
	scanRegistry := registry
	if adapterID != "" {
		adapter, err := registry.MustGet(adapterID)
		if err != nil {
			return nil, err
		}
		scanRegistry = NewRegistry()
		scanRegistry.Register(adapter)
	}

	scan, err := Scan(scanRegistry, projectPath)
	if err != nil {
		return nil, fmt.Errorf("scan configs: %w", err)
	}

	existingList, err := store.ListServices()
	if err != nil {
		return nil, fmt.Errorf("list existing services: %w", err)
	}
	existing := make(map[string]mcpmodel.MCPService, len(existingList))
	for _, svc := range existingList {
		existing[svc.Name] = svc
	}

	var detected []DetectedService
	var parseErrors []DetectedConfig
	for _, cfg := range scan.Configs {
		if cfg.ParseError != "" {
			parseErrors = append(parseErrors, cfg)
			continue
		}
		detected = append(detected, cfg.Services...)
	}

	return &ImportPreview{
		Classified:  ClassifyServices(detected, existing),
		EnvVarNeeds: EnvVarNeeds(detected, envStored),
		ParseErrors: parseErrors,
	}, nil
}
