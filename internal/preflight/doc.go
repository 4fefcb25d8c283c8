// Package preflight provides readiness checks for the generation backends
// and filesystem paths storyreel depends on.
//
// The workflow manager runs RunAll before long-running batches so a missing
// key or unwritable staging directory fails fast instead of after the first
// scene. The "storyreel doctor" command adds the network reachability checks
// and the external binary checks from package deps.
package preflight
