package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/analytics"
	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/database"
)

func newAnalyticsFixture(t *testing.T) (*AnalyticsHandler, *analytics.Store) {
	t.Helper()
	db, err := database.New(config.AnalyticsConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "events.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := analytics.NewStore(db, nil)
	require.NoError(t, err)
	return NewAnalyticsHandler(store), store
}

func TestImpressionRecorded(t *testing.T) {
	h, store := newAnalyticsFixture(t)

	out, err := h.Impression(context.Background(), &ImpressionInput{Body: EventCommon{
		AdID:     "ad-1",
		VideoID:  "vid-1",
		ShowName: "Road Trip",
		Product:  "Widget",
		Company:  "Acme",
	}})
	require.NoError(t, err)

	assert.True(t, out.Body.Success)
	assert.True(t, strings.HasPrefix(out.Body.EventID, "imp_ad-1_"), out.Body.EventID)
	assert.Equal(t, "Impression tracked", out.Body.Message)

	events, err := store.Recent(context.Background(), analytics.KindImpression, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Acme", events[0].Company)
	assert.Empty(t, events[0].UserID, "anonymous caller leaves user unset")
}

func TestEventAttributedToAuthenticatedCaller(t *testing.T) {
	h, store := newAnalyticsFixture(t)

	in := &ClickInput{}
	in.Body.EventCommon = EventCommon{AdID: "ad-2"}
	in.Body.ClickSource = "progress_bar"

	out, err := h.Click(authedCtx("viewer-7"), in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Body.EventID, "click_ad-2_"))

	events, err := store.Recent(context.Background(), analytics.KindClick, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "viewer-7", events[0].UserID)
	assert.Equal(t, "progress_bar", events[0].ClickSource)
}

func TestKindSpecificFieldsPersisted(t *testing.T) {
	h, store := newAnalyticsFixture(t)
	ctx := context.Background()

	view := &ViewInput{}
	view.Body.EventCommon = EventCommon{AdID: "ad-3"}
	view.Body.ViewDuration = 12.5
	_, err := h.View(ctx, view)
	require.NoError(t, err)

	value := 49.99
	conv := &ConversionInput{}
	conv.Body.EventCommon = EventCommon{AdID: "ad-3"}
	conv.Body.ConversionType = "purchase"
	conv.Body.ConversionValue = &value
	convOut, err := h.Conversion(ctx, conv)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(convOut.Body.EventID, "conv_ad-3_"))

	dis, err := h.Dismissal(ctx, &DismissInput{Body: EventCommon{AdID: "ad-3"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dis.Body.EventID, "dismiss_ad-3_"))

	counts, err := store.CountsByKind(ctx, "ad-3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[analytics.KindView])
	assert.Equal(t, int64(1), counts[analytics.KindConversion])
	assert.Equal(t, int64(1), counts[analytics.KindDismissal])

	views, err := store.Recent(ctx, analytics.KindView, 1)
	require.NoError(t, err)
	require.NotNil(t, views[0].ViewDuration)
	assert.Equal(t, 12.5, *views[0].ViewDuration)
}

func TestMissingAdIDRejected(t *testing.T) {
	h, _ := newAnalyticsFixture(t)

	_, err := h.Impression(context.Background(), &ImpressionInput{Body: EventCommon{}})
	require.Error(t, err)
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.GetStatus())
}
