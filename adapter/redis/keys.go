package redis

// Redis key naming conventions for flume data.
// All keys are prefixed with "flume:" to avoid collisions.

const keyPrefix = "flume:"

// ── Job keys ──

// jobKey returns the key for a job entity: flume:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobLogsKey returns the List key for a job's log lines: flume:job_logs:{id}
func jobLogsKey(id string) string { return keyPrefix + "job_logs:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Queue keys ──

// readyKey returns the ready Sorted Set for a queue: flume:ready:{name}.
// Score = priority (negated) + run-at fraction; lowest pops first.
func readyKey(name string) string { return keyPrefix + "ready:" + name }

// delayedKey returns the delayed Sorted Set for a queue: flume:delayed:{name}.
// Score = run-at in unix milliseconds.
func delayedKey(name string) string { return keyPrefix + "delayed:" + name }

// queueMetaKey returns the Hash holding a queue's paused flag and default
// limiter: flume:queue_meta:{name}
func queueMetaKey(name string) string { return keyPrefix + "queue_meta:" + name }

// queueNamesKey is the Set tracking all queue names for enumeration.
const queueNamesKey = keyPrefix + "queues"

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry entity: flume:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all DLQ entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"

// ── Worker keys ──

// workerKey returns the key for a worker entity: flume:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"
