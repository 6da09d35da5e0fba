package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/meigma/iconcache"
)

func runResolve(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	name := fs.String("name", "", "logical icon name, e.g. house or arrowRight")
	variant := fs.String("variant", "", "icon style: thin, light, regular, bold, fill, duotone")
	size := fs.Float64("size", 24, "display size in pixels")
	base := fs.String("base", "", "self-hosted icon directory tried last")
	ref := fs.String("ref", "", "raw reference to load instead of a named icon")
	full := fs.Bool("full", false, "print the whole data URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*name == "") == (*ref == "") {
		fmt.Fprintln(fs.Output(), "resolve: exactly one of -name or -ref is required")
		fs.Usage()
		return errUsage
	}

	res := a.client.ResolveIcon(ctx, iconcache.Request{
		Name:    *name,
		Variant: *variant,
		Size:    *size,
		Base:    *base,
		Ref:     *ref,
	})
	out := res.Ref
	if !*full && len(out) > 96 {
		out = out[:96] + "..."
	}
	fmt.Fprintf(a.stdout, "origin: %s\nbucket: %d\n", res.Origin, iconcache.Bucket(*size))
	if res.Digest != "" {
		fmt.Fprintf(a.stdout, "digest: %s\n", res.Digest)
	}
	if res.Err != nil {
		fmt.Fprintf(a.stdout, "error: %v\n", res.Err)
	}
	fmt.Fprintf(a.stdout, "ref: %s\n", out)
	return nil
}

func runStats(ctx context.Context, a *app, _ []string) error {
	st, err := a.client.Store().Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "dir: %s\nvector: %d\nraster: %d\nbytes: %d\n",
		a.cfg.Cache.Dir, st.VectorCount, st.RasterCount, st.TotalBytes)
	return nil
}

func runClean(ctx context.Context, a *app, _ []string) error {
	n, err := a.client.Store().ValidateAndClean(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "removed: %d\n", n)
	return nil
}

func runClear(ctx context.Context, a *app, _ []string) error {
	if err := a.client.Store().Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "cleared")
	return nil
}

func runRules(_ context.Context, a *app, _ []string) error {
	for _, r := range a.client.Registry().Rules() {
		fmt.Fprintln(a.stdout, r.Text())
	}
	return nil
}

func runReset(ctx context.Context, a *app, _ []string) error {
	a.client.Registry().Reset(ctx)
	fmt.Fprintln(a.stdout, "reset")
	return nil
}
