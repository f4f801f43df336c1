// Package experiment implements the A/B experiment engine: definition
// validation, the lifecycle state machine, deterministic subject bucketing,
// outcome event recording, and statistical analysis with a
// significance-aware recommendation.
//
// The service depends on the Repository and SubjectResolver interfaces
// defined in this package and never on a concrete store. Production wiring
// uses the Redis repository (repository/redisrepo); tests use the in-memory
// one (repository/memory).
package experiment
