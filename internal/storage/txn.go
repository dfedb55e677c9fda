package storage

import "context"

// Op is a single step of an atomic commit unit. Do runs inside the
// implementation's transaction scope and reports whether the step applied
// (for conditional writes, whether the expected records were modified).
type Op struct {
	Name string
	// Optional ops may report applied=false without aborting the unit.
	Optional bool
	Do       func(ctx context.Context) (applied bool, err error)
}

// Result is one op's outcome from a commit attempt.
type Result struct {
	Name    string
	Applied bool
}

type Results []Result

// AllApplied reports whether every attempted op modified its records. A
// false return after a nil-error commit means the unit was rolled back on a
// stale read.
func (rs Results) AllApplied() bool {
	for _, r := range rs {
		if !r.Applied {
			return false
		}
	}
	return len(rs) > 0
}

// Txn accumulates ops to be committed as one all-or-nothing unit. Hooks
// receive the open Txn and may append further ops.
type Txn struct {
	ops []Op
}

func (t *Txn) Append(ops ...Op) {
	t.ops = append(t.ops, ops...)
}

func (t *Txn) Ops() []Op {
	return t.ops
}

// Committer executes a Txn atomically. Implementations stop at the first
// required op that does not apply, roll the whole unit back, and return the
// per-op results with a nil error; op failures roll back and return the
// error.
type Committer interface {
	Commit(ctx context.Context, txn *Txn) (Results, error)
}
