// Package authgate is the credential and session lifecycle service for the
// Channelworks storefront. It establishes, verifies, refreshes, and revokes
// caller identity across two coexisting authentication modes (server-side
// session and bearer token), enforces the account security state machine
// (lockout, suspension, verification gating), and migrates password hashes
// between algorithms transparently on login.
//
// The storefront's CRUD surface (catalog, cart, orders) consumes this
// package only through [AuthContext] values and the sentinel errors it
// produces. Account persistence, email delivery, and authorization rules
// are external collaborators reached through the [AccountStore], [Mailer],
// and [Capability] interfaces.
//
// Construct a [Service] with [New]:
//
//	svc, err := authgate.New().
//		WithRedis(rdb).
//		WithAccountStore(accounts).
//		WithConfig(cfg).
//		Build()
package authgate
