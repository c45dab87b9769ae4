// Package mutate holds the domain mutators described in §4.5: narrow
// operations that validate inputs, update persistent state through a
// storage collaborator, update in-memory denormalised fields on the
// returned entity, then publish zero or more EventV1 on one or more
// topics. Exported mutators return error (alongside a result where there is
// one); validation failures are *apierr.Error values.
package mutate

// Per-user limits. The teacher has no equivalent ambient config section for
// these (its agent-bridge domain has no message/bot caps), so the defaults
// here are plain constants rather than a config.Limits struct; a deployment
// wanting different caps recompiles with different constants.
const (
	maxAttachmentsPerMessage = 5
	maxEmbedsPerMessage      = 10
	maxRepliesPerMessage     = 5
	maxBotsPerOwner          = 5
	maxGroupRecipients       = 100
	nonceCacheSize           = 4096
)
