package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/halftimetv/halftime/internal/analytics"
	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/fault"
)

// AnalyticsHandler ingests ad interaction events. Authentication is
// optional here so unauthenticated players can still report.
type AnalyticsHandler struct {
	store *analytics.Store
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(store *analytics.Store) *AnalyticsHandler {
	return &AnalyticsHandler{store: store}
}

// EventCommon carries the identity fields present on every event.
type EventCommon struct {
	AdID       string     `json:"ad_id" required:"true" doc:"Ad identifier"`
	VideoID    string     `json:"video_id" doc:"Video the ad appeared in"`
	ShowName   string     `json:"show_name" doc:"Show or video title"`
	Product    string     `json:"product" doc:"Advertised product"`
	Company    string     `json:"company" doc:"Advertiser"`
	Timestamp  *time.Time `json:"timestamp,omitempty" doc:"Event time; defaults to server time"`
	AdPosition *float64   `json:"ad_position,omitempty" doc:"Ad position in the video, seconds"`
}

// ImpressionInput is an ad impression report.
type ImpressionInput struct {
	Body EventCommon
}

// ClickInput is an ad click report.
type ClickInput struct {
	Body struct {
		EventCommon
		ClickSource string `json:"click_source" doc:"popup, progress_bar or marker"`
	}
}

// ViewInput is an ad view-duration report.
type ViewInput struct {
	Body struct {
		EventCommon
		ViewDuration float64 `json:"view_duration" required:"true" doc:"Seconds the ad was watched"`
	}
}

// ConversionInput is an ad conversion report.
type ConversionInput struct {
	Body struct {
		EventCommon
		ConversionType  string   `json:"conversion_type" required:"true" doc:"purchase, signup, download, ..."`
		ConversionValue *float64 `json:"conversion_value,omitempty" doc:"Monetary value if applicable"`
	}
}

// DismissInput is an ad dismissal report.
type DismissInput struct {
	Body EventCommon
}

// EventOutput acknowledges a recorded event.
type EventOutput struct {
	Body struct {
		Success bool   `json:"success"`
		EventID string `json:"event_id"`
		Message string `json:"message"`
	}
}

// Register registers the analytics routes with the API.
func (h *AnalyticsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "trackImpression",
		Method:      "POST",
		Path:        "/api/v1/analytics/impressions",
		Summary:     "Track ad impression",
		Tags:        []string{"Analytics"},
	}, h.Impression)

	huma.Register(api, huma.Operation{
		OperationID: "trackClick",
		Method:      "POST",
		Path:        "/api/v1/analytics/clicks",
		Summary:     "Track ad click",
		Tags:        []string{"Analytics"},
	}, h.Click)

	huma.Register(api, huma.Operation{
		OperationID: "trackView",
		Method:      "POST",
		Path:        "/api/v1/analytics/views",
		Summary:     "Track ad view duration",
		Tags:        []string{"Analytics"},
	}, h.View)

	huma.Register(api, huma.Operation{
		OperationID: "trackConversion",
		Method:      "POST",
		Path:        "/api/v1/analytics/conversions",
		Summary:     "Track ad conversion",
		Tags:        []string{"Analytics"},
	}, h.Conversion)

	huma.Register(api, huma.Operation{
		OperationID: "trackDismissal",
		Method:      "POST",
		Path:        "/api/v1/analytics/dismissals",
		Summary:     "Track ad dismissal",
		Tags:        []string{"Analytics"},
	}, h.Dismissal)
}

// Impression records an ad impression.
func (h *AnalyticsHandler) Impression(ctx context.Context, input *ImpressionInput) (*EventOutput, error) {
	return h.record(ctx, analytics.KindImpression, input.Body, nil, "Impression tracked")
}

// Click records an ad click.
func (h *AnalyticsHandler) Click(ctx context.Context, input *ClickInput) (*EventOutput, error) {
	return h.record(ctx, analytics.KindClick, input.Body.EventCommon, func(e *analytics.Event) {
		e.ClickSource = input.Body.ClickSource
	}, "Click tracked")
}

// View records how long an ad was watched.
func (h *AnalyticsHandler) View(ctx context.Context, input *ViewInput) (*EventOutput, error) {
	return h.record(ctx, analytics.KindView, input.Body.EventCommon, func(e *analytics.Event) {
		d := input.Body.ViewDuration
		e.ViewDuration = &d
	}, "View tracked")
}

// Conversion records a conversion action attributed to an ad.
func (h *AnalyticsHandler) Conversion(ctx context.Context, input *ConversionInput) (*EventOutput, error) {
	return h.record(ctx, analytics.KindConversion, input.Body.EventCommon, func(e *analytics.Event) {
		e.ConversionType = input.Body.ConversionType
		e.ConversionValue = input.Body.ConversionValue
	}, "Conversion tracked")
}

// Dismissal records an ad being closed by the viewer.
func (h *AnalyticsHandler) Dismissal(ctx context.Context, input *DismissInput) (*EventOutput, error) {
	return h.record(ctx, analytics.KindDismissal, input.Body, nil, "Dismissal tracked")
}

func (h *AnalyticsHandler) record(ctx context.Context, kind analytics.Kind, common EventCommon, extra func(*analytics.Event), message string) (*EventOutput, error) {
	e := &analytics.Event{
		Kind:       kind,
		AdID:       common.AdID,
		VideoID:    common.VideoID,
		ShowName:   common.ShowName,
		Product:    common.Product,
		Company:    common.Company,
		AdPosition: common.AdPosition,
	}
	if common.Timestamp != nil {
		e.Timestamp = common.Timestamp.UTC()
	}
	// Identity comes from the auth context, never the body.
	if p, ok := auth.PrincipalFrom(ctx); ok && p.Subject != auth.AnonymousSubject {
		e.UserID = p.Subject
	}
	if extra != nil {
		extra(e)
	}

	eventID, err := h.store.Insert(ctx, e)
	if err != nil {
		if fault.KindOf(err) == fault.KindInvalidInput {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to record event")
	}

	out := &EventOutput{}
	out.Body.Success = true
	out.Body.EventID = eventID
	out.Body.Message = message
	return out, nil
}
