package pipeline

import (
	"context"

	"github.com/matzehuels/bundlewire/pkg/cache"
	"github.com/matzehuels/bundlewire/pkg/model"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/render/nodelink"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// Render draws the wiring of st, reusing a cached rendering of an identical
// graph when there is one.
func (r *Runner) Render(ctx context.Context, st *state.State, opts RenderOptions) ([]byte, error) {
	data, _, err := r.RenderWithCacheInfo(ctx, st, opts)
	return data, err
}

// RenderWithCacheInfo is Render and also reports whether the cache served
// the result.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, st *state.State, opts RenderOptions) ([]byte, bool, error) {
	opts = opts.WithDefaults()
	revs := st.All()
	if opts.HideUnresolved {
		revs = resolvedOnly(revs)
	}

	key := r.Keyer.RenderKey(nodelink.Hash(revs), cache.RenderKeyOpts{
		Format:    opts.Format,
		Namespace: opts.Namespace,
		Detailed:  opts.Detailed,
	})
	if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, cache.KeyTypeRender)
		return data, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, cache.KeyTypeRender)

	data, err := nodelink.Render(ctx, revs, opts.Format, nodelink.Options{
		Detailed:  opts.Detailed,
		Namespace: opts.Namespace,
	})
	if err != nil {
		return nil, false, err
	}
	if err := r.Cache.Set(ctx, key, data, 0); err == nil {
		observability.Cache().OnCacheSet(ctx, cache.KeyTypeRender, len(data))
	} else {
		r.Logger.Warn("cache render", "error", err)
	}
	return data, false, nil
}

func resolvedOnly(revs []*model.Revision) []*model.Revision {
	out := make([]*model.Revision, 0, len(revs))
	for _, r := range revs {
		if r.IsResolved() {
			out = append(out, r)
		}
	}
	return out
}
