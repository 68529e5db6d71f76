package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/profile"
)

// ProfileHandler runs viewer profile analysis.
type ProfileHandler struct {
	service *profile.Service
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(service *profile.Service) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// ProfileAnalyzeInput carries the collected platform signals.
type ProfileAnalyzeInput struct {
	Body struct {
		PlatformData profile.PlatformData `json:"platform_data"`
	}
}

// ProfileAnalyzeOutput is the full analysis response.
type ProfileAnalyzeOutput struct {
	Body profile.Analysis
}

// Register registers the profile routes with the API.
func (h *ProfileHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "analyzeProfile",
		Method:      "POST",
		Path:        "/api/v1/profile/analyze",
		Summary:     "Analyze viewer profile",
		Description: "Infers demographic segments from platform data and recommends a product",
		Tags:        []string{"Profile"},
	}, h.Analyze)
}

// Analyze infers a profile for the caller and matches a product.
func (h *ProfileHandler) Analyze(ctx context.Context, input *ProfileAnalyzeInput) (*ProfileAnalyzeOutput, error) {
	caller, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	analysis, err := h.service.Analyze(ctx, caller, input.Body.PlatformData)
	if err != nil {
		switch fault.KindOf(err) {
		case fault.KindOracleUnreachable, fault.KindOracleParse:
			return nil, huma.Error502BadGateway("profile analysis failed: " + err.Error())
		case fault.KindInvalidInput:
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error500InternalServerError("profile analysis failed")
		}
	}
	return &ProfileAnalyzeOutput{Body: *analysis}, nil
}
