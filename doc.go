// Package iconcache resolves icon references into displayable assets.
//
// A reference is a logical icon (name, visual variant and pixel size) or a
// raw URL. Resolution goes through an in-memory tier, a persistent on-disk
// store and finally the network with mirrors, retries and a built-in
// fallback, so it never fails. Resolved icons are registered as size-bucketed
// CSS rules that survive process restarts.
//
// # Quick Start
//
//	c, err := iconcache.New(
//	    iconcache.WithCacheDir("/var/cache/icons"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	res := c.ResolveIcon(ctx, iconcache.Request{Name: "house", Variant: "duotone", Size: 24})
//	fmt.Println(res.Ref) // data:image/svg+xml;base64,...
//
// # Loading raw references
//
// The [Loader] can be used on its own for URLs:
//
//	l := iconcache.NewLoader(iconcache.WithStore(store))
//	defer l.Close()
//	res := l.Load(ctx, "https://cdn.example.net/icons/gear.svg", 32)
//
// Load always returns a usable reference. Inspect [Result.Origin] to learn
// which tier answered and [Result.Err] for the last failure, if any.
package iconcache
