package scripthdr

import "testing"

func TestParse_SingleLine(t *testing.T) {
	src := "#!/bin/bash\n#JS cores=2 mem_mb=1024 name=a\necho hi\n"
	h := Parse(src)

	if h.Cores != 2 || !h.HasCores() {
		t.Fatalf("cores = %d, has=%v", h.Cores, h.HasCores())
	}
	if h.MemMB != 1024 || !h.HasMemMB() {
		t.Fatalf("mem_mb = %d, has=%v", h.MemMB, h.HasMemMB())
	}
	if h.Name != "a" {
		t.Fatalf("name = %q", h.Name)
	}
}

func TestParse_MultipleDirectiveLines(t *testing.T) {
	src := "#!/bin/bash\n#JS cores=4\n#JS mem_mb=2048 time_limit=1:00:00\necho hi\n"
	h := Parse(src)

	if h.Cores != 4 {
		t.Fatalf("cores = %d", h.Cores)
	}
	if h.MemMB != 2048 {
		t.Fatalf("mem_mb = %d", h.MemMB)
	}
	if h.TimeLimit != "1:00:00" {
		t.Fatalf("time_limit = %q", h.TimeLimit)
	}
}

func TestParse_QuotedValues(t *testing.T) {
	src := `#JS stdout="out %x.log" stderr='err %x.log'` + "\necho hi\n"
	h := Parse(src)

	if h.Stdout != "out %x.log" {
		t.Fatalf("stdout = %q", h.Stdout)
	}
	if h.Stderr != "err %x.log" {
		t.Fatalf("stderr = %q", h.Stderr)
	}
}

func TestParse_StopsAtFirstNonCommentLine(t *testing.T) {
	src := "#JS cores=2\necho hi\n#JS cores=99\n"
	h := Parse(src)

	if h.Cores != 2 {
		t.Fatalf("cores = %d, want directives after script body to be ignored", h.Cores)
	}
}

func TestParse_UnknownKeysIgnored(t *testing.T) {
	src := "#JS cores=2 bogus=xyz\n"
	h := Parse(src)

	if h.Cores != 2 {
		t.Fatalf("cores = %d", h.Cores)
	}
}

func TestParse_BlankLinesBeforeDirectivesAreSkipped(t *testing.T) {
	src := "\n\n#JS cores=3\necho hi\n"
	h := Parse(src)

	if h.Cores != 3 {
		t.Fatalf("cores = %d", h.Cores)
	}
}

func TestParse_NoDirectives(t *testing.T) {
	src := "#!/bin/bash\necho hi\n"
	h := Parse(src)

	if h.HasCores() || h.HasMemMB() {
		t.Fatalf("expected no fields set, got %+v", h)
	}
}

func TestExpandTemplate(t *testing.T) {
	got := ExpandTemplate("logs/%x-%j.out", "myjob", "20260730-0001")
	want := "logs/myjob-20260730-0001.out"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExpandTemplate_LeavesOtherPercentSequencesLiteral(t *testing.T) {
	got := ExpandTemplate("100%%done-%x", "job", "1")
	want := "100%%done-job"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExpandTemplate_TrailingPercent(t *testing.T) {
	got := ExpandTemplate("weird%", "job", "1")
	if got != "weird%" {
		t.Fatalf("got %q", got)
	}
}
