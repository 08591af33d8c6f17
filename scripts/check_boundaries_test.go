package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryContextsRespectBoundaries(t *testing.T) {
	assert.Empty(t, collectViolations(filepath.Join("..", "contexts")))
}

func TestDomainImportingAdaptersIsReported(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "billing", "invoice-service", "domain", "entities")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.go"), []byte(`package entities

import (
	"time"

	"notary/contexts/billing/invoice-service/adapters/postgres"
	"notary/internal/platform/db"
)

var _ = time.Now
var _ = postgres.Repository{}
var _ = db.Database{}
`), 0o644))

	violations := collectViolations(root)
	rules := make([]string, 0, len(violations))
	for _, v := range violations {
		rules = append(rules, v.Rule)
	}
	assert.Contains(t, rules, "domain must not import adapters")
	assert.Contains(t, rules, "domain must not import runtime infrastructure")
	assert.Contains(t, rules, "domain import is outside explicit allowlist")
}

func TestApplicationCrossModuleImportIsReported(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "billing", "invoice-service", "application")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logger.go"), []byte(`package application

import (
	"golang.org/x/sync/errgroup"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)
`), 0o644))

	violations := collectViolations(root)
	require.Len(t, violations, 2)
	assert.Equal(t, "application import is outside explicit allowlist", violations[0].Rule)
	assert.Equal(t, "cross-module imports are forbidden", violations[1].Rule)
}
