// Package lenskit defines the boundary to an augmented-reality lens runtime.
//
// The runtime is an opaque capability provider: it owns rendering, compositing
// and tracking. lensnode only needs to bootstrap it, open a rendering session,
// hand the session a camera source, and choose which lens the session applies.
//
//	rt, err := bootstrapper.Bootstrap(ctx, apiToken)
//	session, err := rt.CreateSession(ctx)
//	lenses, err := rt.Lenses().LoadLensGroups(ctx, []string{groupID})
//	source := lenskit.NewMediaStreamSource(stream)
//	err = session.SetSource(ctx, source)
//	source.SetTransform(lenskit.TransformMirrorX)
//	err = session.Play(ctx)
//	err = session.ApplyLens(ctx, lenses[0])
//
// The remote subpackage implements these interfaces over HTTP; lenskittest
// provides a recording fake.
package lenskit
