// Package hooks is the typed extension surface plugins populate while they
// boot and the rest of the CMS queries at runtime.
//
// Every capability (auth, media, search, notification, payment, user) has its
// own interface and its own slot in the Registry. Fan-out queries such as
// AuthProviders call every registered hook of one category and merge the
// answers; a hook that returns an error or panics is logged and skipped.
// Single-target queries such as ProcessUpload return a Result whose Outcome
// tells a missing hook apart from a failing one.
//
//	registry := hooks.NewRegistry(logger)
//	_ = registry.RegisterAuthHook("discord-login", discordAuth)
//	providers := registry.AuthProviders(ctx)
package hooks
