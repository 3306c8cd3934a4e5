// Package sessionmgr orchestrates the bootstrap that runs when the app
// becomes active: it fetches the account and the app config concurrently and
// replaces the Snapshot wholesale when both succeed.
//
// Entitlements come from the account and are cleared on sign-out. Feature
// flags come from the app config, live in a ConfigProvider, and survive
// sign-out since they are not account-scoped.
package sessionmgr
