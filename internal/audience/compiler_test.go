package audience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow keeps relative date windows deterministic.
var fixedNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestCompiler() *Compiler {
	c := NewCompiler()
	c.now = func() time.Time { return fixedNow }
	return c
}

func datePtr(t time.Time) *time.Time { return &t }

func TestCompileStringCategories(t *testing.T) {
	c := newTestCompiler()

	tests := []struct {
		name     string
		cond     Condition
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "browser is",
			cond:     Condition{Kind: KindProperty, Category: CategoryBrowser, Operator: OpIs, Value: "Chrome"},
			wantSQL:  "LOWER(browser) = ?",
			wantArgs: []interface{}{"chrome"},
		},
		{
			name:     "browser is_not",
			cond:     Condition{Kind: KindProperty, Category: CategoryBrowser, Operator: OpIsNot, Value: "Safari"},
			wantSQL:  "LOWER(browser) != ?",
			wantArgs: []interface{}{"safari"},
		},
		{
			name:     "os contains",
			cond:     Condition{Kind: KindProperty, Category: CategoryOperatingSystem, Operator: OpContains, Value: "Windows"},
			wantSQL:  "os ILIKE ?",
			wantArgs: []interface{}{"%Windows%"},
		},
		{
			name:     "language is",
			cond:     Condition{Kind: KindProperty, Category: CategoryLanguage, Operator: OpIs, Value: "EN"},
			wantSQL:  "LOWER(language) = ?",
			wantArgs: []interface{}{"en"},
		},
		{
			name:     "referrer contains",
			cond:     Condition{Kind: KindProperty, Category: CategoryReferrer, Operator: OpContains, Value: "google"},
			wantSQL:  "referrer ILIKE ?",
			wantArgs: []interface{}{"%google%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := c.Compile(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, frag.SQL)
			assert.Equal(t, tt.wantArgs, frag.Args)
		})
	}
}

func TestCompileCaseInsensitive(t *testing.T) {
	c := newTestCompiler()

	upper, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIs, Country: "Canada"})
	require.NoError(t, err)
	lower, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIs, Country: "canada"})
	require.NoError(t, err)

	// "Canada" and "canada" must compile to semantically equal predicates.
	assert.Equal(t, upper, lower)
}

func TestCompileLocation(t *testing.T) {
	c := newTestCompiler()

	t.Run("is with one slot", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIs, Country: "Canada"})
		require.NoError(t, err)
		assert.Equal(t, "LOWER(country) = ?", frag.SQL)
		assert.Equal(t, []interface{}{"canada"}, frag.Args)
	})

	t.Run("is with country and city requires both", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIs, Country: "Canada", City: "Toronto"})
		require.NoError(t, err)
		assert.Equal(t, "(LOWER(country) = ? AND LOWER(city) = ?)", frag.SQL)
		assert.Equal(t, []interface{}{"canada", "toronto"}, frag.Args)
	})

	t.Run("is_not negates the conjunction as a whole", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIsNot, Country: "Canada", Region: "Ontario"})
		require.NoError(t, err)
		assert.Equal(t, "NOT (LOWER(country) = ? AND LOWER(region) = ?)", frag.SQL)
	})

	t.Run("contains searches all slots", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpContains, Value: "york"})
		require.NoError(t, err)
		assert.Equal(t, "(country ILIKE ? OR region ILIKE ? OR city ILIKE ?)", frag.SQL)
		assert.Equal(t, []interface{}{"%york%", "%york%", "%york%"}, frag.Args)
	})

	t.Run("is without any slot is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpIs})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})

	t.Run("contains without value is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLocation, Operator: OpContains})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})
}

func TestCompileDateWindows(t *testing.T) {
	c := newTestCompiler()

	tests := []struct {
		name       string
		cond       Condition
		wantSQL    string
		wantCutoff time.Time
	}{
		{
			name:       "in_last 15 days",
			cond:       Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpInLast, NumberValue: 15, DateUnit: UnitDays},
			wantSQL:    "subscribed_at >= ?",
			wantCutoff: fixedNow.AddDate(0, 0, -15),
		},
		{
			name:       "less_than_ago 2 weeks",
			cond:       Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpLessThanAgo, NumberValue: 2, DateUnit: UnitWeeks},
			wantSQL:    "subscribed_at >= ?",
			wantCutoff: fixedNow.AddDate(0, 0, -14),
		},
		{
			name: "more_than_ago 3 months is calendar-naive",
			cond: Condition{Kind: KindProperty, Category: CategoryLastSeen, Operator: OpMoreThanAgo, NumberValue: 3, DateUnit: UnitMonths},
			// 3 months is exactly 90 days regardless of calendar.
			wantSQL:    "last_seen_at < ?",
			wantCutoff: fixedNow.AddDate(0, 0, -90),
		},
		{
			name:       "in_last 1 year is 365 days",
			cond:       Condition{Kind: KindProperty, Category: CategoryLastSeen, Operator: OpInLast, NumberValue: 1, DateUnit: UnitYears},
			wantSQL:    "last_seen_at >= ?",
			wantCutoff: fixedNow.AddDate(0, 0, -365),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := c.Compile(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, frag.SQL)
			require.Len(t, frag.Args, 1)
			assert.Equal(t, tt.wantCutoff, frag.Args[0])
		})
	}
}

func TestCompileDateWindowBoundaries(t *testing.T) {
	// A subscriber who joined 10 days ago is inside a 15-day window and
	// outside a 5-day window.
	c := newTestCompiler()
	subscribedAt := fixedNow.AddDate(0, 0, -10)

	wide, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpInLast, NumberValue: 15, DateUnit: UnitDays})
	require.NoError(t, err)
	assert.True(t, subscribedAt.After(wide.Args[0].(time.Time)) || subscribedAt.Equal(wide.Args[0].(time.Time)))

	narrow, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpInLast, NumberValue: 5, DateUnit: UnitDays})
	require.NoError(t, err)
	assert.True(t, subscribedAt.Before(narrow.Args[0].(time.Time)))
}

func TestCompileDateLiterals(t *testing.T) {
	c := newTestCompiler()
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("before is exclusive", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpBefore, DateValue: datePtr(cutoff)})
		require.NoError(t, err)
		assert.Equal(t, "subscribed_at < ?", frag.SQL)
		assert.Equal(t, []interface{}{cutoff}, frag.Args)
	})

	t.Run("after is exclusive", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryLastSeen, Operator: OpAfter, DateValue: datePtr(cutoff)})
		require.NoError(t, err)
		assert.Equal(t, "last_seen_at > ?", frag.SQL)
	})

	t.Run("before without date is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpBefore})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})

	t.Run("in_last without number is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpInLast, DateUnit: UnitDays})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})

	t.Run("in_last without unit is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategorySubscriptionDate, Operator: OpInLast, NumberValue: 7})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})
}

func TestCompileDeviceType(t *testing.T) {
	c := newTestCompiler()

	t.Run("is_mobile asserts the flag and ignores value", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryDeviceType, Operator: OpIsMobile, Value: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, "is_mobile = TRUE", frag.SQL)
		assert.Empty(t, frag.Args)
	})

	t.Run("is_desktop asserts the flag false", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryDeviceType, Operator: OpIsDesktop})
		require.NoError(t, err)
		assert.Equal(t, "is_mobile = FALSE", frag.SQL)
	})

	t.Run("is matches the device type value", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryDeviceType, Operator: OpIs, Value: "Tablet"})
		require.NoError(t, err)
		assert.Equal(t, "LOWER(device_type) = ?", frag.SQL)
		assert.Equal(t, []interface{}{"tablet"}, frag.Args)
	})

	t.Run("contains is not a device type operator", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryDeviceType, Operator: OpContains, Value: "tab"})
		assert.ErrorIs(t, err, ErrUnsupportedCategory)
	})
}

func TestCompileEmailDomain(t *testing.T) {
	c := newTestCompiler()

	t.Run("is normalizes a missing leading @", func(t *testing.T) {
		withAt, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryEmailDomain, Operator: OpIs, Value: "@Gmail.com"})
		require.NoError(t, err)
		withoutAt, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryEmailDomain, Operator: OpIs, Value: "gmail.com"})
		require.NoError(t, err)

		assert.Equal(t, withAt, withoutAt)
		assert.Equal(t, "LOWER(email) LIKE ?", withAt.SQL)
		assert.Equal(t, []interface{}{"%@gmail.com"}, withAt.Args)
	})

	t.Run("is_not negates the suffix match", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryEmailDomain, Operator: OpIsNot, Value: "yahoo.com"})
		require.NoError(t, err)
		assert.Equal(t, "LOWER(email) NOT LIKE ?", frag.SQL)
		assert.Equal(t, []interface{}{"%@yahoo.com"}, frag.Args)
	})

	t.Run("contains keeps the raw fragment", func(t *testing.T) {
		frag, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryEmailDomain, Operator: OpContains, Value: "gmail"})
		require.NoError(t, err)
		assert.Equal(t, "email ILIKE ?", frag.SQL)
		assert.Equal(t, []interface{}{"%gmail%"}, frag.Args)
	})

	t.Run("missing value is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryEmailDomain, Operator: OpIs})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})
}

func TestCompileRejections(t *testing.T) {
	c := newTestCompiler()

	t.Run("unknown category", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: "unknown_future_field", Operator: OpIs, Value: "x"})
		assert.ErrorIs(t, err, ErrUnsupportedCategory)
	})

	t.Run("action kind is never silently matched", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindAction, Category: CategoryBrowser, Operator: OpIs, Value: "chrome"})
		assert.ErrorIs(t, err, ErrUnsupportedCategory)
	})

	t.Run("operator illegal for category", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryBrowser, Operator: OpInLast, NumberValue: 5, DateUnit: UnitDays})
		assert.ErrorIs(t, err, ErrUnsupportedCategory)
	})

	t.Run("missing string value is incomplete", func(t *testing.T) {
		_, err := c.Compile(Condition{Kind: KindProperty, Category: CategoryBrowser, Operator: OpIs})
		assert.ErrorIs(t, err, ErrIncompleteCondition)
	})
}

func TestDateUnitDayCount(t *testing.T) {
	assert.Equal(t, 1, UnitDays.DayCount())
	assert.Equal(t, 7, UnitWeeks.DayCount())
	assert.Equal(t, 30, UnitMonths.DayCount())
	assert.Equal(t, 365, UnitYears.DayCount())
	assert.Equal(t, 0, DateUnit("fortnights").DayCount())
}

func TestSupportedCategories(t *testing.T) {
	cats := SupportedCategories()
	assert.Contains(t, cats, CategoryLocation)
	assert.Contains(t, cats, CategorySubscriptionDate)
	assert.NotContains(t, cats, Category("unknown"))
	// Sorted for stable API output.
	for i := 1; i < len(cats); i++ {
		assert.True(t, cats[i-1] < cats[i])
	}
}
