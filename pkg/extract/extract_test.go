package extract

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)

func TestRelativeDays(t *testing.T) {
	cases := map[string]string{
		"we fixed that 3 days ago":   "2025-10-16",
		"the incident was 7 days ago": "2025-10-12",
		"last week":                  "2025-10-12",
		"yesterday":                  "2025-10-18",
		"tomorrow":                   "2025-10-20",
		"two weeks ago":              "2025-10-05",
		"in 5 days":                  "2025-10-24",
		"next month":                 "2025-11-18",
	}
	for text, want := range cases {
		got := Extract(text, ref)
		assert.Contains(t, got.NormalizedDates, want, "input %q", text)
	}
}

func TestFortnight(t *testing.T) {
	got := Extract("a fortnight", ref)
	assert.Contains(t, got.TemporalUnits, "14 days")
	assert.Empty(t, got.NormalizedDates, "bare duration has no direction")

	got = Extract("a fortnight ago", ref)
	assert.Contains(t, got.NormalizedDates, "2025-10-05")
}

func TestMonthApproximation(t *testing.T) {
	got := Extract("2 months later", ref)
	assert.Contains(t, got.TemporalUnits, "2 months")
	assert.Contains(t, got.TemporalUnits, "60 days")
	// 30-day months: 2025-10-19 + 60d.
	assert.Contains(t, got.NormalizedDates, "2025-12-18")
}

func TestPluralUnitPhraseKeptWhole(t *testing.T) {
	got := Extract("we fixed that 3 days ago", ref)
	assert.Contains(t, got.TemporalUnits, "3 days")
	assert.NotContains(t, got.TemporalUnits, "3 day")

	got = Extract("in 6 months", ref)
	assert.Contains(t, got.TemporalUnits, "6 months")
	assert.NotContains(t, got.TemporalUnits, "6 month")
}

func TestWeeksCanonicalized(t *testing.T) {
	got := Extract("the migration took 3 weeks", ref)
	assert.Contains(t, got.TemporalUnits, "3 weeks")
	assert.Contains(t, got.TemporalUnits, "21 days")
}

func TestAbsoluteDates(t *testing.T) {
	got := Extract("released on 2024-03-15 and again on January 5, 2025", ref)
	assert.Contains(t, got.NormalizedDates, "2024-03-15")
	assert.Contains(t, got.NormalizedDates, "2025-01-05")
	require.Len(t, got.Dates, 2)
}

func TestInvalidDatesOmitted(t *testing.T) {
	got := Extract("scheduled for 2024-02-30", ref)
	assert.Len(t, got.Dates, 1, "raw substring is still recorded")
	assert.Empty(t, got.NormalizedDates, "Feb 30 is not a calendar date")

	got = Extract("February 30 was a typo", ref)
	assert.Empty(t, got.NormalizedDates)
}

func TestNumbersNotDoubleCounted(t *testing.T) {
	got := Extract("retried 5 times starting 3 days ago", ref)
	assert.Equal(t, []string{"5"}, got.Numbers, "the 3 belongs to the temporal span")
}

func TestNumbersDecimal(t *testing.T) {
	got := Extract("latency rose to 2.5 seconds across 12 pods", ref)
	assert.Equal(t, []string{"2.5", "12"}, got.Numbers)
}

func TestNamedEntities(t *testing.T) {
	got := Extract("We migrated the billing service to Kubernetes after talking to Sarah Chen.", ref)
	assert.Contains(t, got.Entities, "Kubernetes")
	assert.Contains(t, got.Entities, "Sarah Chen")
}

func TestSentenceInitialSkipped(t *testing.T) {
	got := Extract("Deploys were failing. Nothing in the logs.", ref)
	assert.NotContains(t, got.Entities, "Deploys")
	assert.NotContains(t, got.Entities, "Nothing")
}

func TestDisambiguationMonthSense(t *testing.T) {
	got := Extract("the outage on April 5 was resolved", ref)
	assert.Contains(t, got.DisambiguatedEntities, "April [month]")

	got = Extract("we shipped it in May 2024", ref)
	assert.Contains(t, got.DisambiguatedEntities, "May [month]")
}

func TestDisambiguationNameSense(t *testing.T) {
	got := Extract("I paired with April on the parser", ref)
	assert.Contains(t, got.DisambiguatedEntities, "April [name]")
}

func TestDisambiguationSentenceInitial(t *testing.T) {
	got := Extract("May approved the rollout.", ref)
	assert.Contains(t, got.DisambiguatedEntities, "May [name]")

	got = Extract("May 2024 was rough.", ref)
	assert.Contains(t, got.DisambiguatedEntities, "May [month]")
}

func TestAcronyms(t *testing.T) {
	got := Extract("we compute MRR (Mean Reciprocal Rank) and Approximate Nearest Neighbor (ANN) lookups", ref)
	assert.Equal(t, "Mean Reciprocal Rank", got.Acronyms["MRR"])
	assert.Equal(t, "MRR", got.Acronyms["Mean Reciprocal Rank"])
	assert.Equal(t, "Approximate Nearest Neighbor", got.Acronyms["ANN"])
	assert.Equal(t, "ANN", got.Acronyms["Approximate Nearest Neighbor"])
}

func TestEmptyInput(t *testing.T) {
	got := Extract("", ref)
	assert.Empty(t, got.Dates)
	assert.Empty(t, got.NormalizedDates)
	assert.Empty(t, got.Numbers)
	assert.Empty(t, got.TemporalUnits)
	assert.Empty(t, got.Entities)
	assert.NotNil(t, got.Acronyms)
}

func TestDeterministic(t *testing.T) {
	text := "we met April 5, 2024 at GitHub HQ (headquarters) and shipped 3 weeks later"
	a := Extract(text, ref)
	b := Extract(text, ref)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("extract is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestCaseInsensitiveMatching(t *testing.T) {
	got := Extract("THREE DAYS AGO and Yesterday", ref)
	assert.Contains(t, got.NormalizedDates, "2025-10-16")
	assert.Contains(t, got.NormalizedDates, "2025-10-18")
}
