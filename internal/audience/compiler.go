package audience

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Fragment is one compiled predicate piece. Placeholders are written as
// '?' and renumbered to $n by the assembler so that skipped conditions
// never leave argument gaps.
type Fragment struct {
	SQL  string
	Args []interface{}
}

// compileFunc compiles a single condition for one category.
type compileFunc func(c *Compiler, cond Condition) (Fragment, error)

// categoryCompilers is the single source of truth for the supported
// category set. Adding a category is one registration here.
var categoryCompilers = map[Category]compileFunc{
	CategorySubscriptionDate: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileDate("subscribed_at", cond)
	},
	CategoryLastSeen: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileDate("last_seen_at", cond)
	},
	CategoryLocation:   (*Compiler).compileLocation,
	CategoryDeviceType: (*Compiler).compileDeviceType,
	CategoryBrowser: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileString("browser", cond)
	},
	CategoryOperatingSystem: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileString("os", cond)
	},
	CategoryLanguage: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileString("language", cond)
	},
	CategoryReferrer: func(c *Compiler, cond Condition) (Fragment, error) {
		return c.compileString("referrer", cond)
	},
	CategoryEmailDomain: (*Compiler).compileEmailDomain,
}

// Compiler turns one Condition into a store-level predicate fragment.
// It owns the category/operator mapping and all per-category
// normalization. Compilation never touches the store.
type Compiler struct {
	now func() time.Time
}

// NewCompiler creates a compiler using the wall clock for relative
// date windows.
func NewCompiler() *Compiler {
	return &Compiler{now: time.Now}
}

// Compile compiles a single condition. It fails with
// ErrUnsupportedCategory for unknown categories, operators illegal for
// the category, and action-kind conditions, and with
// ErrIncompleteCondition when a required value slot is missing.
func (c *Compiler) Compile(cond Condition) (Fragment, error) {
	if cond.Kind == KindAction {
		return Fragment{}, fmt.Errorf("%w: action conditions are not implemented", ErrUnsupportedCategory)
	}
	fn, ok := categoryCompilers[cond.Category]
	if !ok {
		return Fragment{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, cond.Category)
	}
	return fn(c, cond)
}

// SupportedCategories returns the registered category set, sorted for
// stable API output.
func SupportedCategories() []Category {
	cats := make([]Category, 0, len(categoryCompilers))
	for cat := range categoryCompilers {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// ==========================================
// DATE CONDITIONS
// ==========================================

// compileDate handles the timestamp categories. Relative windows are
// calendar-naive: weeks are 7 days, months 30, years 365.
func (c *Compiler) compileDate(field string, cond Condition) (Fragment, error) {
	switch cond.Operator {
	case OpInLast, OpLessThanAgo:
		cutoff, err := c.windowCutoff(cond)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: field + " >= ?", Args: []interface{}{cutoff}}, nil

	case OpMoreThanAgo:
		cutoff, err := c.windowCutoff(cond)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: field + " < ?", Args: []interface{}{cutoff}}, nil

	case OpBefore:
		if cond.DateValue == nil {
			return Fragment{}, fmt.Errorf("%w: operator %q requires a date value", ErrIncompleteCondition, cond.Operator)
		}
		return Fragment{SQL: field + " < ?", Args: []interface{}{*cond.DateValue}}, nil

	case OpAfter:
		if cond.DateValue == nil {
			return Fragment{}, fmt.Errorf("%w: operator %q requires a date value", ErrIncompleteCondition, cond.Operator)
		}
		return Fragment{SQL: field + " > ?", Args: []interface{}{*cond.DateValue}}, nil

	default:
		return Fragment{}, fmt.Errorf("%w: operator %q is not valid for %q", ErrUnsupportedCategory, cond.Operator, cond.Category)
	}
}

// windowCutoff converts (NumberValue, DateUnit) to "now minus N days".
func (c *Compiler) windowCutoff(cond Condition) (time.Time, error) {
	if cond.NumberValue <= 0 {
		return time.Time{}, fmt.Errorf("%w: operator %q requires a positive number value", ErrIncompleteCondition, cond.Operator)
	}
	mult := cond.DateUnit.DayCount()
	if mult == 0 {
		return time.Time{}, fmt.Errorf("%w: operator %q requires a date unit", ErrIncompleteCondition, cond.Operator)
	}
	days := cond.NumberValue * mult
	return c.now().AddDate(0, 0, -days), nil
}

// ==========================================
// LOCATION CONDITIONS
// ==========================================

// compileLocation evaluates each populated slot as an equality, ANDed
// together. is_not negates the conjunction as a whole rather than
// per field.
func (c *Compiler) compileLocation(cond Condition) (Fragment, error) {
	switch cond.Operator {
	case OpIs, OpIsNot:
		var parts []string
		var args []interface{}
		slots := []struct {
			column string
			value  string
		}{
			{"country", cond.Country},
			{"region", cond.Region},
			{"city", cond.City},
		}
		for _, slot := range slots {
			if slot.value == "" {
				continue
			}
			parts = append(parts, "LOWER("+slot.column+") = ?")
			args = append(args, strings.ToLower(slot.value))
		}
		if len(parts) == 0 {
			return Fragment{}, fmt.Errorf("%w: location %q requires at least one of country/region/city", ErrIncompleteCondition, cond.Operator)
		}
		sql := strings.Join(parts, " AND ")
		if cond.Operator == OpIsNot {
			sql = "NOT (" + sql + ")"
		} else if len(parts) > 1 {
			sql = "(" + sql + ")"
		}
		return Fragment{SQL: sql, Args: args}, nil

	case OpContains:
		if cond.Value == "" {
			return Fragment{}, fmt.Errorf("%w: location contains requires a value", ErrIncompleteCondition)
		}
		pattern := likePattern(cond.Value)
		return Fragment{
			SQL:  "(country ILIKE ? OR region ILIKE ? OR city ILIKE ?)",
			Args: []interface{}{pattern, pattern, pattern},
		}, nil

	default:
		return Fragment{}, fmt.Errorf("%w: operator %q is not valid for location", ErrUnsupportedCategory, cond.Operator)
	}
}

// ==========================================
// DEVICE CONDITIONS
// ==========================================

// compileDeviceType supports value matching plus the mobile/desktop
// shorthand operators, which ignore the value slot and assert the
// subscriber's mobile flag.
func (c *Compiler) compileDeviceType(cond Condition) (Fragment, error) {
	switch cond.Operator {
	case OpIsMobile:
		return Fragment{SQL: "is_mobile = TRUE"}, nil
	case OpIsDesktop:
		return Fragment{SQL: "is_mobile = FALSE"}, nil
	case OpIs, OpIsNot:
		return c.compileString("device_type", cond)
	default:
		return Fragment{}, fmt.Errorf("%w: operator %q is not valid for device_type", ErrUnsupportedCategory, cond.Operator)
	}
}

// ==========================================
// STRING CONDITIONS
// ==========================================

// compileString handles the plain string categories. All comparisons
// are case-insensitive.
func (c *Compiler) compileString(field string, cond Condition) (Fragment, error) {
	if cond.Value == "" {
		return Fragment{}, fmt.Errorf("%w: operator %q requires a value for %q", ErrIncompleteCondition, cond.Operator, cond.Category)
	}
	switch cond.Operator {
	case OpIs:
		return Fragment{SQL: "LOWER(" + field + ") = ?", Args: []interface{}{strings.ToLower(cond.Value)}}, nil
	case OpIsNot:
		return Fragment{SQL: "LOWER(" + field + ") != ?", Args: []interface{}{strings.ToLower(cond.Value)}}, nil
	case OpContains:
		return Fragment{SQL: field + " ILIKE ?", Args: []interface{}{likePattern(cond.Value)}}, nil
	default:
		return Fragment{}, fmt.Errorf("%w: operator %q is not valid for %q", ErrUnsupportedCategory, cond.Operator, cond.Category)
	}
}

// compileEmailDomain matches against the address's domain part. A
// missing leading '@' is normalized in for the exact operators so
// "gmail.com" and "@gmail.com" behave identically; contains keeps the
// raw fragment since it may be a partial like "gmail".
func (c *Compiler) compileEmailDomain(cond Condition) (Fragment, error) {
	if cond.Value == "" {
		return Fragment{}, fmt.Errorf("%w: operator %q requires a domain value", ErrIncompleteCondition, cond.Operator)
	}
	switch cond.Operator {
	case OpIs:
		return Fragment{SQL: "LOWER(email) LIKE ?", Args: []interface{}{"%" + normalizeDomain(cond.Value)}}, nil
	case OpIsNot:
		return Fragment{SQL: "LOWER(email) NOT LIKE ?", Args: []interface{}{"%" + normalizeDomain(cond.Value)}}, nil
	case OpContains:
		return Fragment{SQL: "email ILIKE ?", Args: []interface{}{likePattern(cond.Value)}}, nil
	default:
		return Fragment{}, fmt.Errorf("%w: operator %q is not valid for email_domain", ErrUnsupportedCategory, cond.Operator)
	}
}

func normalizeDomain(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if !strings.HasPrefix(v, "@") {
		v = "@" + v
	}
	return v
}

func likePattern(v string) string {
	return "%" + v + "%"
}
