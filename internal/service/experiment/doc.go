// Package experiment implements A/B experiments between two pieces of
// content: deterministic variant assignment, lifecycle management, and
// result computation from tagged performance records.
//
// Assign and Bucket are pure and safe to call from request-serving code.
// Everything else depends on the repository interfaces defined in this
// package.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package experiment
