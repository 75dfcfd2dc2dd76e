package audience

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CompiledPredicate is the composite predicate for one segment's
// condition list, always scoped to the tenant's active subscribers.
// WhereSQL uses $n placeholders aligned with Args.
type CompiledPredicate struct {
	WhereSQL string
	Args     []interface{}
	Skipped  []SkippedCondition
}

// Assembler combines compiled fragments into one composite predicate.
//
// Chaining follows a fixed two-tier precedence: every condition joined
// with AND (including the first, whose logical operator is ignored)
// lands in a required AND-group; OR-joined conditions are alternatives
// to each other in a separate OR-group. When both groups are non-empty
// the result is (AND-group) AND (OR-group). This is intentionally not
// a general boolean expression engine; campaigns authored against the
// old builder depend on exactly this grouping.
type Assembler struct {
	compiler *Compiler
}

// NewAssembler creates an assembler around the given compiler.
func NewAssembler(compiler *Compiler) *Assembler {
	return &Assembler{compiler: compiler}
}

// Assemble compiles each condition in order and combines the surviving
// fragments. Conditions that fail to compile (unsupported category or
// operator, missing value slots) are dropped and logged with the
// segment and condition ids; the rest of the segment still evaluates.
// segmentID is uuid.Nil for unsaved condition lists being previewed.
//
// An empty condition list yields a predicate matching every active
// subscriber of the tenant.
func (a *Assembler) Assemble(tenantID, segmentID uuid.UUID, conditions []Condition) CompiledPredicate {
	var andParts, orParts []string
	var andArgs, orArgs []interface{}
	var skipped []SkippedCondition

	for i, cond := range conditions {
		frag, err := a.compiler.Compile(cond)
		if err != nil {
			log.Printf("[Assembler] segment %s: skipping condition %s: %v", segmentLabel(segmentID), cond.ID, err)
			skipped = append(skipped, SkippedCondition{
				ConditionID: cond.ID,
				Category:    cond.Category,
				Reason:      err.Error(),
			})
			continue
		}

		if i > 0 && cond.LogicalOperator == LogicOr {
			orParts = append(orParts, frag.SQL)
			orArgs = append(orArgs, frag.Args...)
		} else {
			andParts = append(andParts, frag.SQL)
			andArgs = append(andArgs, frag.Args...)
		}
	}

	where := "tenant_id = ? AND is_active = TRUE"
	args := []interface{}{tenantID}

	if len(andParts) > 0 {
		where += " AND (" + strings.Join(andParts, " AND ") + ")"
		args = append(args, andArgs...)
	}
	if len(orParts) > 0 {
		where += " AND (" + strings.Join(orParts, " OR ") + ")"
		args = append(args, orArgs...)
	}

	return CompiledPredicate{
		WhereSQL: renumberPlaceholders(where),
		Args:     args,
		Skipped:  skipped,
	}
}

func segmentLabel(id uuid.UUID) string {
	if id == uuid.Nil {
		return "(preview)"
	}
	return id.String()
}

// renumberPlaceholders rewrites '?' placeholders to positional $n
// parameters. Fragments carry their own argument slices, so skipping a
// condition never leaves a numbering gap.
func renumberPlaceholders(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(sql[i])
	}
	return b.String()
}

// ArgCount returns the number of placeholders bound by the predicate,
// used when appending extra parameters to a derived query.
func (p CompiledPredicate) ArgCount() int {
	return len(p.Args)
}

// String implements fmt.Stringer for debug logging.
func (p CompiledPredicate) String() string {
	return fmt.Sprintf("WHERE %s (%d args, %d skipped)", p.WhereSQL, len(p.Args), len(p.Skipped))
}
