package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/oracle"
)

type fakeInferrer struct {
	platform map[string]any
	catalog  []oracle.Product
	inferErr error
}

func (f *fakeInferrer) ProfileInfer(_ context.Context, platformData map[string]any) (*oracle.Profile, error) {
	f.platform = platformData
	if f.inferErr != nil {
		return nil, f.inferErr
	}
	return &oracle.Profile{
		Interests:    []string{"trail running", "coffee"},
		Demographics: map[string]any{"segment": "outdoor enthusiast"},
		Analysis:     "active viewer",
	}, nil
}

func (f *fakeInferrer) MatchProduct(_ context.Context, _ oracle.Profile, catalog []oracle.Product) (*oracle.ProductMatch, error) {
	f.catalog = catalog
	m := &oracle.ProductMatch{}
	m.BestMatch.Product = catalog[0]
	m.BestMatch.RelevanceScore = 0.92
	m.BestMatch.Reasoning = "matches outdoor interests"
	return m, nil
}

func TestAnalyzeBuildsFullResponse(t *testing.T) {
	inferrer := &fakeInferrer{}
	svc, err := NewService(config.ProfileConfig{}, inferrer, nil)
	require.NoError(t, err)

	data := PlatformData{
		ShowsWatched:    []string{"Summit Stories"},
		Cookies:         map[string]any{"region": "us-west"},
		BrowsingHistory: []string{"trailshoes.example"},
	}
	caller := auth.Principal{Subject: "user-1", Email: "u@example.com"}

	got, err := svc.Analyze(context.Background(), caller, data)
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.UserInfo.UserID)
	assert.Equal(t, "u@example.com", got.UserInfo.Email)
	assert.Equal(t, data, got.PlatformData)
	assert.Equal(t, "active viewer", got.Profile.Analysis)
	assert.Equal(t, "Peak Performance", got.FinalDecision.Company)
	assert.Equal(t, "Trail Runner Pro", got.FinalDecision.Product)
	assert.Equal(t, 0.92, got.FinalDecision.RelevanceScore)

	// Oracle sees the documented platform-data shape.
	assert.Equal(t, []string{"Summit Stories"}, inferrer.platform["shows"])
	assert.Equal(t, []string{"trailshoes.example"}, inferrer.platform["browsing_history"])
}

func TestAnalyzePropagatesOracleFailure(t *testing.T) {
	inferrer := &fakeInferrer{inferErr: fault.New(fault.KindOracleUnreachable, "down")}
	svc, err := NewService(config.ProfileConfig{}, inferrer, nil)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), auth.Principal{Subject: "u"}, PlatformData{})
	assert.Equal(t, fault.KindOracleUnreachable, fault.KindOf(err))
}

func TestCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"company":"Acme","product":"Widget","category":"gadgets"}
	]`), 0o644))

	inferrer := &fakeInferrer{}
	svc, err := NewService(config.ProfileConfig{CatalogPath: path}, inferrer, nil)
	require.NoError(t, err)
	require.Len(t, svc.Catalog(), 1)

	got, err := svc.Analyze(context.Background(), auth.Principal{Subject: "u"}, PlatformData{})
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.FinalDecision.Company)
	assert.Len(t, inferrer.catalog, 1)
}

func TestCatalogErrors(t *testing.T) {
	_, err := NewService(config.ProfileConfig{CatalogPath: "/nope/catalog.json"}, &fakeInferrer{}, nil)
	assert.Equal(t, fault.KindInvalidInput, fault.KindOf(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0o644))
	_, err = NewService(config.ProfileConfig{CatalogPath: bad}, &fakeInferrer{}, nil)
	assert.Equal(t, fault.KindInvalidInput, fault.KindOf(err))

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o644))
	_, err = NewService(config.ProfileConfig{CatalogPath: empty}, &fakeInferrer{}, nil)
	assert.Equal(t, fault.KindInvalidInput, fault.KindOf(err))
}
