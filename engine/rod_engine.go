package engine

import (
	"context"
	"fmt"

	"github.com/use-agent/linkscan/models"
)

// RenderFunc is the callback that drives the headless browser. It is
// injected from cmd/ to avoid an import cycle (engine/ -> scraper/).
type RenderFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine is the render path. It delegates to the rod scraper through
// a callback. forceStealth always turns on stealth evasions.
type RodEngine struct {
	render       RenderFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine. The render func receives the
// cooperation context untouched and must scope credentials to the
// target host itself.
func NewRodEngine(render RenderFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		render:       render,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.render == nil {
		return nil, fmt.Errorf("%s: render func not configured", e.name)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.render(ctx, &r)
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeRender, e.name, err)
	}

	result.EngineName = e.name
	result.Strategy = models.StrategyRendered
	if result.Title == "" {
		result.Title = extractTitle(result.HTML)
	}
	return result, nil
}
