// Package remote implements service.RemoteSessionService against real
// identity services.
//
// HTTPService speaks a small JSON API:
//
//	POST {base}/auth/refresh   {"refresh_token": "..."}  -> {"session": {...}}
//	GET  {base}/auth/session   Authorization: Bearer ... -> {"session": {...}}
//
// OAuth2Service refreshes through a standard OAuth2 token endpoint and
// validates against the provider's userinfo endpoint.
//
// Both classify failures the same way: client errors the caller cannot
// fix by retrying are wrapped with domain.MarkPermanent, everything else
// is transient.
package remote
