package annotation

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestThoughtDepth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "No marker defaults",
			input: "君はどう思う？",
			want:  DefaultThoughtDepth,
		},
		{
			name:  "Single marker",
			input: "良い問いだね。[THOUGHT_DEPTH]8[/THOUGHT_DEPTH]",
			want:  8,
		},
		{
			name:  "First marker wins",
			input: "[THOUGHT_DEPTH]2[/THOUGHT_DEPTH] text [THOUGHT_DEPTH]9[/THOUGHT_DEPTH]",
			want:  2,
		},
		{
			name:  "Zero is a real value",
			input: "[THOUGHT_DEPTH]0[/THOUGHT_DEPTH]",
			want:  0,
		},
		{
			name:  "Non numeric payload defaults",
			input: "[THOUGHT_DEPTH]deep[/THOUGHT_DEPTH]",
			want:  DefaultThoughtDepth,
		},
		{
			name:  "Overflowing payload defaults",
			input: "[THOUGHT_DEPTH]99999999999999999999999[/THOUGHT_DEPTH]",
			want:  DefaultThoughtDepth,
		},
		{
			name:  "Unclosed marker defaults",
			input: "[THOUGHT_DEPTH]6",
			want:  DefaultThoughtDepth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThoughtDepth(tt.input); got != tt.want {
				t.Errorf("ThoughtDepth(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQuote(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		want       Quote
		wantParsed bool
	}{
		{
			name:       "Well formed",
			input:      `[QUOTE]{"text":"a","author":"b"}[/QUOTE]`,
			want:       Quote{Text: "a", Author: "b"},
			wantParsed: true,
		},
		{
			name:       "Invalid JSON is absent",
			input:      `[QUOTE]{not valid json}[/QUOTE]`,
			wantParsed: false,
		},
		{
			name:       "Missing marker is absent",
			input:      "ただの会話",
			wantParsed: false,
		},
		{
			name:       "Null payload is absent",
			input:      `[QUOTE]null[/QUOTE]`,
			wantParsed: false,
		},
		{
			name:       "Empty text is absent",
			input:      `[QUOTE]{"text":"  ","author":"b"}[/QUOTE]`,
			wantParsed: false,
		},
		{
			name:       "Missing author is kept",
			input:      `[QUOTE]{"text":"本当に大切なものは目に見えない"}[/QUOTE]`,
			want:       Quote{Text: "本当に大切なものは目に見えない"},
			wantParsed: true,
		},
		{
			name:       "Payload spanning lines",
			input:      "[QUOTE]{\n\"text\": \"a\",\n\"author\": \"b\"\n}[/QUOTE]",
			want:       Quote{Text: "a", Author: "b"},
			wantParsed: true,
		},
		{
			name:       "First marker wins even if malformed",
			input:      `[QUOTE]oops[/QUOTE][QUOTE]{"text":"a","author":"b"}[/QUOTE]`,
			wantParsed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseQuote(tt.input).Get()
			if ok != tt.wantParsed {
				t.Fatalf("ParseQuote(%q) parsed = %v, want %v", tt.input, ok, tt.wantParsed)
			}
			if ok && got != tt.want {
				t.Errorf("ParseQuote(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTemperamentResult(t *testing.T) {
	got, ok := ParseTemperamentResult(`見えてきた。[TEMPERAMENT_RESULT]{"main":"mirror","sub":"abyss"}[/TEMPERAMENT_RESULT]`).Get()
	if !ok {
		t.Fatal("expected temperament result to be parsed")
	}
	if got.Main != "mirror" || got.Sub != "abyss" {
		t.Errorf("unexpected result: %+v", got)
	}

	if ParseTemperamentResult(`[TEMPERAMENT_RESULT]{"main":[/TEMPERAMENT_RESULT]`).IsParsed() {
		t.Error("expected malformed payload to be absent")
	}
	if ParseTemperamentResult("no marker").IsParsed() {
		t.Error("expected missing marker to be absent")
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Plain text is trimmed",
			input: "  こんにちは  \n",
			want:  "こんにちは",
		},
		{
			name:  "All markers removed",
			input: "問いは続く。\n[THOUGHT_DEPTH]5[/THOUGHT_DEPTH][QUOTE]{\"text\":\"a\",\"author\":\"b\"}[/QUOTE]",
			want:  "問いは続く。",
		},
		{
			name:  "Every occurrence removed",
			input: "a[THOUGHT_DEPTH]1[/THOUGHT_DEPTH]b[THOUGHT_DEPTH]2[/THOUGHT_DEPTH]c",
			want:  "abc",
		},
		{
			name:  "Malformed payloads still stripped",
			input: "x[QUOTE]{broken[/QUOTE]y[TEMPERAMENT_RESULT]nope[/TEMPERAMENT_RESULT]z[THOUGHT_DEPTH]high[/THOUGHT_DEPTH]",
			want:  "xyz",
		},
		{
			name:  "Unbalanced tags stripped",
			input: "[QUOTE]{\"text\":\"a\"} tail [/TEMPERAMENT_RESULT]",
			want:  "{\"text\":\"a\"} tail",
		},
		{
			name:  "Nested tag fragments collapse",
			input: "[QU[QUOTE]OTE]text",
			want:  "text",
		},
		{
			name:  "Only markers leaves empty text",
			input: "[THOUGHT_DEPTH]3[/THOUGHT_DEPTH]",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanIdempotentAndTagFree(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"[QUOTE][QUOTE]{}[/QUOTE][/QUOTE]",
		"[THOUGHT_DEPTH][THOUGHT_DEPTH]4[/THOUGHT_DEPTH][/THOUGHT_DEPTH]",
		"[TEMPERAMENT_RESULT]\n{\"main\":\"story\"}\n",
		"[/QUOTE] [QUOTE] [/THOUGHT_DEPTH] [THOUGHT_DEPTH]",
		"[TEMPERAMENT_[QUOTE]RESULT]x[/TEMPERAMENT_RESULT]",
		"  [QUOTE]{\"text\":\"a\",\"author\":\"b\"}[/QUOTE]  text  ",
	}

	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: %q != %q", in, once, twice)
		}
		for _, tag := range []string{TagThoughtDepth, TagQuote, TagTemperamentResult} {
			if strings.Contains(once, "["+tag+"]") || strings.Contains(once, "[/"+tag+"]") {
				t.Errorf("Clean(%q) = %q still contains %s marker", in, once, tag)
			}
		}
	}
}

func TestParse(t *testing.T) {
	raw := "星は見えない。[THOUGHT_DEPTH]7[/THOUGHT_DEPTH]\n[QUOTE]{\"text\":\"本当に大切なものは目に見えない\",\"author\":\"サン＝テグジュペリ\"}[/QUOTE]"

	got := Parse(raw)
	want := Annotation{
		ThoughtDepth: 7,
		Quote:        Parsed(Quote{Text: "本当に大切なものは目に見えない", Author: "サン＝テグジュペリ"}),
		Temperament:  Absent[TemperamentResult](),
		DisplayText:  "星は見えない。",
	}

	opts := cmp.AllowUnexported(Result[Quote]{}, Result[TemperamentResult]{})
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestResultOrElse(t *testing.T) {
	if got := Absent[int]().OrElse(5); got != 5 {
		t.Errorf("expected fallback 5, got %d", got)
	}
	if got := Parsed(2).OrElse(5); got != 2 {
		t.Errorf("expected parsed 2, got %d", got)
	}
}
