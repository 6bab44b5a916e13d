package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"decant/internal/diag"
	"decant/internal/source"
)

func sample(t *testing.T) (*diag.Bag, *source.FileSet) {
	t.Helper()
	fs := source.NewFileSet()
	content := []byte("void f(void) {\n    free(p);\n    free(p);\n}\n")
	id := fs.AddVirtual("/home/user/project/src/twice.c", content)
	// the second "free(p)"
	start := uint32(bytes.LastIndex(content, []byte("free(p)")))

	bag := diag.NewBag(10)
	d := diag.NewWarning(diag.OwnDoubleFree, source.Span{File: id, Start: start, End: start + 7}, "p is freed twice").
		WithNote(source.Span{File: id, Start: 19, End: 26}, "first free here")
	bag.Add(d)
	return bag, fs
}

func TestPathModes(t *testing.T) {
	bag, fs := sample(t)
	tests := []struct {
		name     string
		mode     PathMode
		base     string
		contains string
	}{
		{"absolute", PathModeAbsolute, "", "/home/user/project/src/twice.c:3:5"},
		{"relative", PathModeRelative, "/home/user/project", "src/twice.c:3:5"},
		{"basename", PathModeBasename, "", "twice.c:3:5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode, BaseDir: tt.base})
			out := buf.String()
			if !strings.Contains(out, tt.contains) {
				t.Errorf("expected %q in:\n%s", tt.contains, out)
			}
			if !strings.Contains(out, "WARNING OWN3001:") {
				t.Errorf("missing severity and code:\n%s", out)
			}
		})
	}
}

func TestPrettyExcerpt(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Context: 1, PathMode: PathModeBasename, ShowNotes: true})
	out := buf.String()

	for _, want := range []string{
		"2 |     free(p);",
		"3 |     free(p);",
		"4 | }",
		"  |     ^~~~~~",
		"note: twice.c:2:5: first free here",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colour codes printed with Color disabled")
	}
}

func TestJSON(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, IncludeNotes: true}); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Count != 1 || len(out.Diagnostics) != 1 {
		t.Fatalf("count = %d", out.Count)
	}
	d := out.Diagnostics[0]
	if d.Severity != "WARNING" || d.Code != "OWN3001" {
		t.Errorf("severity/code = %s/%s", d.Severity, d.Code)
	}
	if d.Location.File != "twice.c" || d.Location.StartLine != 3 || d.Location.StartCol != 5 {
		t.Errorf("location = %+v", d.Location)
	}
	if len(d.Notes) != 1 || d.Notes[0].Location.StartLine != 2 {
		t.Errorf("notes = %+v", d.Notes)
	}
}

func TestJSONMax(t *testing.T) {
	bag, fs := sample(t)
	bag.Add(diag.NewError(diag.BldGoto, source.Span{File: 0, Start: 0, End: 4}, "goto"))
	out := BuildDiagnosticsOutput(bag.Items(), fs, JSONOpts{Max: 1})
	if out.Count != 1 || out.Dropped != 1 {
		t.Fatalf("count=%d dropped=%d", out.Count, out.Dropped)
	}
	if out.Diagnostics[0].Location.StartLine != 0 {
		t.Error("positions included without IncludePositions")
	}
}

func TestSarif(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	err := Sarif(&buf, []Unit{{Items: bag.Items(), Files: fs}}, SarifRunMeta{ToolName: "decant", ToolVersion: "0.4.0", InvocationArgs: []string{"analyze", "twice.c"}})
	if err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("log = %+v", log)
	}
	run := log.Runs[0]
	if len(run.Tool.Driver.Rules) != 1 || run.Tool.Driver.Rules[0].ID != "OWN3001" {
		t.Errorf("rules = %+v", run.Tool.Driver.Rules)
	}
	if len(run.Results) != 1 || run.Results[0].Level != "warning" {
		t.Fatalf("results = %+v", run.Results)
	}
	r := run.Results[0].Locations[0].PhysicalLocation.Region
	if r.StartLine != 3 || r.StartColumn != 5 {
		t.Errorf("region = %+v", r)
	}
	if !run.Invocations[0].ExecutionSuccessful {
		t.Error("warnings only must count as successful")
	}
}
