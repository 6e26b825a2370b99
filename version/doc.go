/*

This package implements single-flight generation of derived image
versions given a backing k-v store.

The `Coordinator` orchestrates one request: check the version cache,
take (or wait on) the build lock, fetch the original, transform,
upload, record. All coordination state lives in the store, so any
number of processes cooperate through the same locks and records.

Mutual exclusion here is best-effort lease-with-polling, not
consensus: a duplicate build wastes work but never corrupts the
cache, since the version write is idempotent by key.

*/
package version
