package tools

import (
	"strings"
	"testing"
)

func TestTruncateTextUnderLimit(t *testing.T) {
	limits := TextLimits{MaxBytes: 100, MaxLines: 10}
	input := "short output\nsecond line"

	got := TruncateText(input, limits, false)
	if got.Truncated {
		t.Error("input under limits reported as truncated")
	}
	if got.Value != input {
		t.Errorf("Value = %q, want input unchanged", got.Value)
	}
	if got.OmittedBytes != 0 || got.OmittedLines != 0 {
		t.Errorf("omissions = (%d, %d), want zero", got.OmittedBytes, got.OmittedLines)
	}
}

func TestTruncateTextByteCap(t *testing.T) {
	limits := TextLimits{MaxBytes: 10}
	input := strings.Repeat("a", 50)

	got := TruncateText(input, limits, false)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if got.OmittedBytes != 40 {
		t.Errorf("OmittedBytes = %d, want 40", got.OmittedBytes)
	}
	if !strings.HasPrefix(got.Value, "aaaaaaaaaa") {
		t.Errorf("tail-biased truncation should keep the beginning, got %q", got.Value)
	}
	if !strings.Contains(got.Value, "omitted") {
		t.Errorf("missing indicator in %q", got.Value)
	}
}

func TestTruncateTextLineCap(t *testing.T) {
	limits := TextLimits{MaxLines: 3}
	input := "l1\nl2\nl3\nl4\nl5"

	got := TruncateText(input, limits, false)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(got.Value, "l1\nl2\nl3\n") {
		t.Errorf("kept content = %q, want first three lines", got.Value)
	}
	if got.OmittedLines != 2 {
		t.Errorf("OmittedLines = %d, want 2", got.OmittedLines)
	}
}

func TestTruncateTextLineCapTrailingNewline(t *testing.T) {
	limits := TextLimits{MaxLines: 3}

	atCap := TruncateText("a\nb\nc\n", limits, false)
	if atCap.Truncated || atCap.Value != "a\nb\nc\n" {
		t.Errorf("input at the line cap altered: %+v", atCap)
	}

	over := TruncateText("a\nb\nc\nd\ne\n", limits, false)
	if !over.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(over.Value, "a\nb\nc\n") {
		t.Errorf("kept content = %q, want first three lines", over.Value)
	}
	if over.OmittedLines != 2 {
		t.Errorf("OmittedLines = %d, want 2", over.OmittedLines)
	}
	if over.OmittedBytes != 4 {
		t.Errorf("OmittedBytes = %d, want 4", over.OmittedBytes)
	}
}

func TestTruncateTextHeadBiasTrailingNewline(t *testing.T) {
	got := TruncateText("a\nb\nc\nd\ne\n", TextLimits{MaxLines: 2}, true)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(got.Value, "d\ne\n") {
		t.Errorf("head-biased truncation should keep the last two lines, got %q", got.Value)
	}
	if got.OmittedLines != 3 {
		t.Errorf("OmittedLines = %d, want 3", got.OmittedLines)
	}
}

func TestTruncateTextHeadBias(t *testing.T) {
	limits := TextLimits{MaxLines: 2}
	input := "old1\nold2\nnew1\nnew2"

	got := TruncateText(input, limits, true)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(got.Value, "new1\nnew2") {
		t.Errorf("head-biased truncation should keep the end, got %q", got.Value)
	}
	if !strings.Contains(got.Value, "omitted from start") {
		t.Errorf("missing start indicator in %q", got.Value)
	}
}

func TestTruncateTextNoLimits(t *testing.T) {
	input := strings.Repeat("x", 1000)
	got := TruncateText(input, TextLimits{}, false)
	if got.Truncated || got.Value != input {
		t.Error("zero limits should pass input through")
	}
}

func TestTruncateCommand(t *testing.T) {
	limits := CommandLimits{MaxBytes: 8}

	under := TruncateCommand("ok", limits)
	if under.Truncated || under.Value != "ok" {
		t.Errorf("under-limit output altered: %+v", under)
	}

	over := TruncateCommand("0123456789abcdef", limits)
	if !over.Truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(over.Value, "01234567") {
		t.Errorf("command truncation should keep the head, got %q", over.Value)
	}
	if over.OmittedBytes != 8 {
		t.Errorf("OmittedBytes = %d, want 8", over.OmittedBytes)
	}
}
