package domain

import (
	"strings"
	"testing"
)

func TestParseEntry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		line string
		want Entry
	}{
		{
			name: "plain",
			line: "Boosts local trade : Reduces tariffs for small traders. More text here.",
			want: Entry{Title: "Boosts local trade", Explanation: "Reduces tariffs for small traders"},
		},
		{
			name: "numbered with bold title",
			line: "1. **Improves water access**: Funds new boreholes in arid counties.",
			want: Entry{Title: "Improves water access", Explanation: "Funds new boreholes in arid counties"},
		},
		{
			name: "bold title wrapping colon",
			line: "**Stronger oversight:** Parliament reviews budgets quarterly.",
			want: Entry{Title: "Stronger oversight", Explanation: "Parliament reviews budgets quarterly"},
		},
		{
			name: "explanation stops at first period",
			line: "Fiscal relief: Cuts VAT to 14. Applies from July.",
			want: Entry{Title: "Fiscal relief", Explanation: "Cuts VAT to 14"},
		},
		{
			name: "only first colon splits",
			line: "Clear rules: Section 3: defines terms.",
			want: Entry{Title: "Clear rules", Explanation: "Section 3: defines terms"},
		},
		{
			name: "missing period",
			line: "Title only: no terminating stop",
			want: Entry{},
		},
		{
			name: "missing colon",
			line: "A sentence with a period.",
			want: Entry{},
		},
		{
			name: "empty",
			line: "",
			want: Entry{},
		},
		{
			name: "period only in ordinal",
			line: "2. Faster courts: judges get deadlines",
			want: Entry{Title: "Faster courts", Explanation: "judges get deadlines"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseEntry(tc.line)
			if got != tc.want {
				t.Fatalf("ParseEntry(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseEntriesAlwaysTen(t *testing.T) {
	t.Parallel()

	var many []string
	for i := 0; i < 14; i++ {
		many = append(many, "Point: explanation.")
	}

	outputs := map[string]string{
		"empty":     "",
		"garbage":   "no structure at all\n\n***",
		"too many":  strings.Join(many, "\n"),
		"mixed":     "Intro line without format\n1. Good: fine.\nbad line\n2. Also good: yes.",
		"blank pad": "\n\n\n",
	}

	for name, out := range outputs {
		entries := ParseEntries(out)
		if len(entries) != EntriesPerBill {
			t.Fatalf("%s: got %d entries, want %d", name, len(entries), EntriesPerBill)
		}
	}

	mixed := ParseEntries(outputs["mixed"])
	if mixed[0] != (Entry{Title: "Good", Explanation: "fine"}) {
		t.Fatalf("unexpected first entry: %+v", mixed[0])
	}
	if mixed[1] != (Entry{Title: "Also good", Explanation: "yes"}) {
		t.Fatalf("unexpected second entry: %+v", mixed[1])
	}
	for i := 2; i < EntriesPerBill; i++ {
		if mixed[i] != (Entry{}) {
			t.Fatalf("entry %d should be a placeholder, got %+v", i, mixed[i])
		}
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"  plain  ", "plain"},
		{"**bold**", "bold"},
		{"12. numbered", "numbered"},
		{"3. **numbered bold**", "numbered bold"},
		{"  ** spaced ** ", "spaced"},
		{"1.5 percent", "5 percent"},
		{"x. not an ordinal", "x. not an ordinal"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
