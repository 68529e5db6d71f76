package generation

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/halftimetv/halftime/internal/oracle"
)

// defaultPromptTemplate ships compiled in; a template file at the
// configured path overrides it.
const defaultPromptTemplate = `You are editing a clip from a {content_genre} {content_type}. The clip runs {clip_duration} seconds.

Before this clip: {summary_before}
After this clip: {summary_after}

Seamlessly integrate {product_name} by {company} ({product_category}) into this scene. The product should appear as a natural part of the environment or action, not as an overlay or cutaway. Keep the characters, setting, lighting and tone unchanged.

The viewer is interested in: {user_interests}
Viewer demographics: {user_demographics}

The result must read as original footage with the product present.`

// PromptContext carries the substitution values for one generation.
type PromptContext struct {
	Product       oracle.Product
	Profile       oracle.Profile
	SummaryBefore string
	SummaryAfter  string
	ContentType   string
	ContentGenre  string
	ClipDuration  float64
}

// PromptBuilder formats generation prompts from a template.
type PromptBuilder struct {
	template string
}

// NewPromptBuilder loads the template from path when it exists,
// otherwise uses the compiled-in default. An empty path skips the file
// lookup.
func NewPromptBuilder(path string) *PromptBuilder {
	template := defaultPromptTemplate
	if path != "" {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			template = string(data)
		}
	}
	return &PromptBuilder{template: template}
}

// Build substitutes the context into the template. Absent fields take
// neutral defaults so a sparse submission still yields a usable prompt.
func (b *PromptBuilder) Build(pc PromptContext) string {
	interests := "general audience"
	if len(pc.Profile.Interests) > 0 {
		interests = strings.Join(pc.Profile.Interests, ", ")
	}

	demographics := "unspecified"
	if len(pc.Profile.Demographics) > 0 {
		demographics = formatDemographics(pc.Profile.Demographics)
	}

	replacer := strings.NewReplacer(
		"{content_type}", orDefault(pc.ContentType, "TV Show"),
		"{content_genre}", orDefault(pc.ContentGenre, "Comedy"),
		"{clip_duration}", fmt.Sprintf("%.1f", pc.ClipDuration),
		"{summary_before}", orDefault(pc.SummaryBefore, "Scene in progress."),
		"{summary_after}", orDefault(pc.SummaryAfter, "Scene continues."),
		"{company}", orDefault(pc.Product.Company, "the brand"),
		"{product_name}", orDefault(pc.Product.Name, "the product"),
		"{product_category}", orDefault(pc.Product.Category, "consumer product"),
		"{user_interests}", interests,
		"{user_demographics}", demographics,
	)
	return replacer.Replace(b.template)
}

func formatDemographics(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, ", ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
