// Package templates renders funnel message templates with lead parameters.
package templates

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"

	"github.com/zf-portal/leadflow/store"
)

const (
	tagOpen  = "{{"
	tagClose = "}}"
)

// TemplateStore is the slice of the store the renderer needs.
type TemplateStore interface {
	GetFunnelTemplate(ctx context.Context, id int32) (*store.FunnelTemplate, error)
	ListFunnelTemplatesByStage(ctx context.Context, stage store.FunnelStage) ([]*store.FunnelTemplate, error)
}

// Renderer resolves funnel templates and substitutes lead parameters.
// Unknown placeholders render as empty strings so a sparse lead profile never
// blocks a send.
type Renderer struct {
	store TemplateStore
}

// NewRenderer creates a template renderer backed by the store.
func NewRenderer(s TemplateStore) *Renderer {
	return &Renderer{store: s}
}

// RenderForStage renders the stage template at the given position, falling
// back to the stage opener (position 0) when that slot is empty. It returns
// an error when the stage has no templates at all.
func (r *Renderer) RenderForStage(ctx context.Context, stage store.FunnelStage, position int, params map[string]string) (string, error) {
	list, err := r.store.ListFunnelTemplatesByStage(ctx, stage)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list templates for stage %s", stage)
	}
	if len(list) == 0 {
		return "", errors.Errorf("no templates configured for stage %s", stage)
	}

	template := list[0]
	for _, candidate := range list {
		if candidate.Position == position {
			template = candidate
			break
		}
	}
	return Render(template.Content, params), nil
}

// RenderRef renders the template referenced by id. A dangling reference is an
// error; the caller decides whether that fails the message.
func (r *Renderer) RenderRef(ctx context.Context, templateID int32, params map[string]string) (string, error) {
	template, err := r.store.GetFunnelTemplate(ctx, templateID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get template %d", templateID)
	}
	if template == nil {
		return "", errors.Errorf("template %d not found", templateID)
	}
	return Render(template.Content, params), nil
}

// Render substitutes {{param}} placeholders in content. Placeholder names are
// matched after trimming surrounding spaces, so "{{ nome }}" and "{{nome}}"
// resolve the same parameter.
func Render(content string, params map[string]string) string {
	t, err := fasttemplate.NewTemplate(content, tagOpen, tagClose)
	if err != nil {
		// Unbalanced tags: deliver the raw content rather than drop the send.
		return content
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		value := params[strings.TrimSpace(tag)]
		return w.Write([]byte(value))
	})
}
