// Package profile turns raw platform signals (watch history, cookies,
// browsing) into an inferred viewer profile and a product
// recommendation drawn from a configured catalog.
package profile

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/observability"
	"github.com/halftimetv/halftime/internal/oracle"
)

// PlatformData is the raw signal set collected by the player frontend.
type PlatformData struct {
	ShowsWatched    []string       `json:"shows_watched"`
	Cookies         map[string]any `json:"cookies"`
	BrowsingHistory []string       `json:"browsing_history"`
}

// UserInfo identifies the caller the analysis was run for.
type UserInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Decision is the recommended product with the oracle's justification.
type Decision struct {
	Company        string  `json:"company"`
	Product        string  `json:"product"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// Analysis is the full profile analysis returned to the caller.
type Analysis struct {
	UserInfo      UserInfo       `json:"user_info"`
	PlatformData  PlatformData   `json:"platform_data"`
	Profile       oracle.Profile `json:"analysis"`
	FinalDecision Decision       `json:"final_decision"`
}

// Inferrer is the oracle surface the service needs.
type Inferrer interface {
	ProfileInfer(ctx context.Context, platformData map[string]any) (*oracle.Profile, error)
	MatchProduct(ctx context.Context, profile oracle.Profile, catalog []oracle.Product) (*oracle.ProductMatch, error)
}

// Service runs profile analysis over a fixed product catalog.
type Service struct {
	oracle  Inferrer
	catalog []oracle.Product
	logger  *slog.Logger
}

// defaultCatalog backs deployments without a configured catalog file.
var defaultCatalog = []oracle.Product{
	{Company: "Peak Performance", Name: "Trail Runner Pro", Category: "sportswear"},
	{Company: "Brew Society", Name: "Cold Brew Kit", Category: "beverage"},
	{Company: "Nimbus Tech", Name: "Aura Earbuds", Category: "electronics"},
	{Company: "Verdant Home", Name: "Smart Garden", Category: "home"},
	{Company: "Atlas Finance", Name: "Atlas Invest", Category: "fintech"},
}

// NewService builds the service, loading the product catalog from
// cfg.CatalogPath when set.
func NewService(cfg config.ProfileConfig, inferrer Inferrer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := defaultCatalog
	if cfg.CatalogPath != "" {
		data, err := os.ReadFile(cfg.CatalogPath)
		if err != nil {
			return nil, fault.Wrap(fault.KindInvalidInput, err, "reading product catalog %s", cfg.CatalogPath)
		}
		var loaded []oracle.Product
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fault.Wrap(fault.KindInvalidInput, err, "parsing product catalog %s", cfg.CatalogPath)
		}
		if len(loaded) == 0 {
			return nil, fault.New(fault.KindInvalidInput, "product catalog %s is empty", cfg.CatalogPath)
		}
		catalog = loaded
	}
	return &Service{
		oracle:  inferrer,
		catalog: catalog,
		logger:  observability.WithComponent(logger, "profile"),
	}, nil
}

// Catalog returns the products the service matches against.
func (s *Service) Catalog() []oracle.Product {
	return s.catalog
}

// Analyze infers a viewer profile from platform data and matches it
// against the catalog.
func (s *Service) Analyze(ctx context.Context, caller auth.Principal, data PlatformData) (*Analysis, error) {
	platform := map[string]any{
		"shows":            data.ShowsWatched,
		"cookies":          data.Cookies,
		"browsing_history": data.BrowsingHistory,
	}

	inferred, err := s.oracle.ProfileInfer(ctx, platform)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile inferred",
		slog.String("user", caller.Subject),
		slog.Int("interests", len(inferred.Interests)))

	match, err := s.oracle.MatchProduct(ctx, *inferred, s.catalog)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product matched",
		slog.String("user", caller.Subject),
		slog.String("company", match.BestMatch.Product.Company),
		slog.String("product", match.BestMatch.Product.Name),
		slog.Float64("relevance", match.BestMatch.RelevanceScore))

	return &Analysis{
		UserInfo: UserInfo{
			UserID: caller.Subject,
			Email:  caller.Email,
		},
		PlatformData: data,
		Profile:      *inferred,
		FinalDecision: Decision{
			Company:        match.BestMatch.Product.Company,
			Product:        match.BestMatch.Product.Name,
			Category:       match.BestMatch.Product.Category,
			RelevanceScore: match.BestMatch.RelevanceScore,
			Reasoning:      match.BestMatch.Reasoning,
		},
	}, nil
}
