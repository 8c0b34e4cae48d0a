package bedrock

import "github.com/akmonengine/bedrock/registry"

// HookFunc runs inside a worker with the worker's private registry
type HookFunc func(*registry.Registry)

// Process-wide external system hooks. They must be set before the first
// island worker is created and never mutated afterwards; concurrent
// mutation is undefined.
var (
	externalInit     HookFunc
	externalPreStep  HookFunc
	externalPostStep HookFunc
)

// SetExternalHooks installs the init, pre-step and post-step hooks called
// once per worker step on the worker goroutine. Nil entries are skipped.
func SetExternalHooks(init, preStep, postStep HookFunc) {
	externalInit = init
	externalPreStep = preStep
	externalPostStep = postStep
}
