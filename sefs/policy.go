package sefs

// IntegrityPolicy selects what happens when a backing file's MAC does not
// match the inode record's stored MAC, resolving the "SEFS integrity-only
// mode's failure action" open question of spec.md §9.
type IntegrityPolicy int

const (
	// PolicyError fails the offending call with vfs.ErrWrongFs. Intended for
	// release builds: a single bad file shouldn't take down the process.
	PolicyError IntegrityPolicy = iota
	// PolicyPanic panics immediately. Intended for debug builds where a MAC
	// mismatch indicates a bug worth stopping on rather than papering over.
	PolicyPanic
)
