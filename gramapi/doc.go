// Package gramapi contains minimal bindings to the Instagram mobile API:
// credential login, a cheap liveness call, media lookup by id/code/url,
// binary download, and photo/video/album upload with caption.
//
// The API is undocumented and hostile; error reporting is free-form text.
// All classification of remote failures lives in Classify so the taxonomy
// can be extended in one place when Instagram changes its wording.
//
// A Client is bound to a Session (device identity plus token/cookie state).
// Sessions serialize to JSON and are reused across process restarts via the
// session store; everything outside this package treats them as opaque.
package gramapi
