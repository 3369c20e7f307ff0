// Package core contains the canonical client contracts: operations, cache
// policies, responses, configuration and the error taxonomy. Adapters and the
// interceptor chain depend on this package; core must not depend on them.
package core
