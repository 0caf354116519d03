/*
Package auth authenticates API callers with pre-shared keys.

Keys come from server.auth.keys in the configuration. A caller presents its
key either as a bearer token or in the X-API-Key header:

	Authorization: Bearer pc_3f9a...
	X-API-Key: pc_3f9a...

Read-only keys may only issue GET and HEAD requests. Everything else is
rejected with 403 so dashboards and on-call tooling can inspect canaries
without being able to promote or roll them back.

# Usage

	validator := auth.NewValidator(cfg.Server.Auth.Keys)
	mw := auth.NewMiddleware(validator, auth.MiddlewareOptions{
		Exempt: func(r *http.Request) bool { return r.URL.Path == "/health" },
	})
	handler = mw.Handle(handler)

Inside a handler the authenticated key is available through KeyFromContext.
*/
package auth
