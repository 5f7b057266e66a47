package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// Catalog API extensions that can be listed in ExtensionsConfig.Enabled.
const (
	ExtensionQuery            = "query"
	ExtensionSort             = "sort"
	ExtensionFields           = "fields"
	ExtensionFilter           = "filter"
	ExtensionFreeText         = "free_text"
	ExtensionPagination       = "pagination"
	ExtensionCollectionSearch = "collection_search"
)

// KnownExtensions lists every extension name accepted in Enabled.
var KnownExtensions = []string{
	ExtensionQuery,
	ExtensionSort,
	ExtensionFields,
	ExtensionFilter,
	ExtensionFreeText,
	ExtensionPagination,
	ExtensionCollectionSearch,
}

// ExtensionsConfig selects the optional parts of the catalog API. Only API
// assembly reads it; the ingestion pipeline never does.
type ExtensionsConfig struct {
	// Enabled names the read extensions listed on the landing page. Their
	// routes belong to the search layer, so conformsTo never claims them.
	Enabled []string `yaml:"enabled"`
	// Transactions mounts the collection and item write routes.
	Transactions bool `yaml:"transactions"`
}

// DefaultExtensionsConfig enables every read extension and no transactions.
func DefaultExtensionsConfig() ExtensionsConfig {
	return ExtensionsConfig{Enabled: slices.Clone(KnownExtensions)}
}

// Validate rejects unknown extension names.
func (e ExtensionsConfig) Validate() error {
	for _, name := range e.Enabled {
		if !slices.Contains(KnownExtensions, name) {
			return fmt.Errorf("unknown extension %q", name)
		}
	}
	return nil
}

// Has reports whether name is enabled.
func (e ExtensionsConfig) Has(name string) bool {
	return slices.Contains(e.Enabled, name)
}

// applyEnv honours ENABLED_EXTENSIONS (comma separated, replaces the list)
// and ENABLE_TRANSACTIONS_EXTENSIONS (yes, true or 1 enables).
func (e *ExtensionsConfig) applyEnv() []string {
	var warnings []string

	if raw, ok := os.LookupEnv("ENABLED_EXTENSIONS"); ok && strings.TrimSpace(raw) != "" {
		var enabled []string
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			switch {
			case name == "":
			case !slices.Contains(KnownExtensions, name):
				warnings = append(warnings, fmt.Sprintf("Ignoring unknown extension '%s' in ENABLED_EXTENSIONS", name))
			case !slices.Contains(enabled, name):
				enabled = append(enabled, name)
			}
		}
		e.Enabled = enabled
	}

	if raw, ok := os.LookupEnv("ENABLE_TRANSACTIONS_EXTENSIONS"); ok {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "yes", "true", "1":
			e.Transactions = true
		default:
			e.Transactions = false
		}
	}
	return warnings
}
