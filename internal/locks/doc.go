// Package locks arbitrates exclusive edit access to shared resources. A
// resource with no entry in the table is free; there is no separate "unlocked"
// record. Nothing here is persisted.
package locks
