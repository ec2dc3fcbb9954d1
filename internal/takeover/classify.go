package takeover

import (
	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// Classification is the merge-classification outcome for one detected
// service name.
type Classification string

const (
	AutoCreate    Classification = "auto_create"
	AutoSkip      Classification = "auto_skip"
	NeedsDecision Classification = "needs_decision"
)

// ConflictType further distinguishes a NeedsDecision outcome.
type ConflictType string

const (
	ConflictDifferentConfig    ConflictType = "different_config"
	ConflictMultipleCandidates ConflictType = "multiple_candidates"
)

// DecisionOption is one of the choices presented to the user for a
// NeedsDecision conflict.
type DecisionOption string

const (
	DecisionKeepExisting  DecisionOption = "keep_existing"
	DecisionUseNew        DecisionOption = "use_new"
	DecisionKeepBoth      DecisionOption = "keep_both"
	DecisionPreferProject DecisionOption = "prefer_project"
	DecisionPreferUser    DecisionOption = "prefer_user"
)

// ClassifiedService is one detected-service name's merge outcome, along
// with every candidate detection that shares the name (across adapters and
// scopes) so the caller can present or act on them.
type ClassifiedService struct {
	Name           string
	Classification Classification
	Conflict       ConflictType
	Candidates     []DetectedService
	Existing       *mcpmodel.MCPService
	Options        []DecisionOption
}

// configEqual compares the fields the spec says define equality: transport
// kind, command, args (order-sensitive), env (key-set and per-key value),
// url, headers. Everything else (source file, scope, adapter) is metadata.
func configEqual(a, b mcpmodel.Transport) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == mcpmodel.TransportStdio {
		if a.Command != b.Command {
			return false
		}
		if len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if a.Args[i] != b.Args[i] {
				return false
			}
		}
		return stringMapEqual(a.Env, b.Env)
	}
	if a.URL != b.URL {
		return false
	}
	return stringMapEqual(a.Headers, b.Headers)
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// ClassifyServices groups every detected service by name and classifies
// each group against the existing service store.
func ClassifyServices(detected []DetectedService, existing map[string]mcpmodel.MCPService) []ClassifiedService {
	groups := make(map[string][]DetectedService)
	var order []string
	for _, d := range detected {
		if _, seen := groups[d.Name]; !seen {
			order = append(order, d.Name)
		}
		groups[d.Name] = append(groups[d.Name], d)
	}

	out := make([]ClassifiedService, 0, len(order))
	for _, name := range order {
		candidates := groups[name]
		cs := ClassifiedService{Name: name, Candidates: candidates}

		stored, known := existing[name]
		if known {
			cs.Existing = &stored
		}

		switch {
		case !known && len(candidates) == 1:
			cs.Classification = AutoCreate

		case !known:
			cs.Classification = NeedsDecision
			cs.Conflict = ConflictMultipleCandidates
			cs.Options = []DecisionOption{DecisionKeepBoth, DecisionPreferProject, DecisionPreferUser}

		case known && allMatchStored(candidates, stored.Transport):
			cs.Classification = AutoSkip

		default:
			cs.Classification = NeedsDecision
			cs.Conflict = ConflictDifferentConfig
			cs.Options = []DecisionOption{DecisionKeepExisting, DecisionUseNew, DecisionKeepBoth}
		}

		out = append(out, cs)
	}
	return out
}

func allMatchStored(candidates []DetectedService, stored mcpmodel.Transport) bool {
	for _, c := range candidates {
		if !configEqual(c.Transport, stored) {
			return false
		}
	}
	return true
}
