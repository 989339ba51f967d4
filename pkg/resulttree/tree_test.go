package resulttree

import (
	"testing"

	"github.com/vitwang05/lexreview/pkg/models"
)

func sampleTree() []*models.ResultNode {
	return []*models.ResultNode{
		{Title: "Điều 1", Children: []*models.ResultNode{
			{Title: "Khoản 1"},
			{Title: "Khoản 1", Children: []*models.ResultNode{
				{Title: "Điểm a"},
			}},
		}},
		{Title: "Điều 2"},
	}
}

func TestParse_NormalizesChildKeys(t *testing.T) {
	payload := `{
		"results": [
			{"title": "A", "sub_items": [{"title": "A.1", "Details": [{"title": "A.1.x"}]}],
			 "details": [{"title": "A.2"}], "SUB_DETAILS": [{"title": "A.3"}]},
			{"title": "B", "children": [{"title": "B.1"}]}
		],
		"process_time": 12.5
	}`

	set, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.ProcessingTime == nil || *set.ProcessingTime != 12.5 {
		t.Errorf("ProcessingTime = %v, want 12.5", set.ProcessingTime)
	}
	if len(set.Nodes) != 2 {
		t.Fatalf("got %d top-level nodes, want 2", len(set.Nodes))
	}

	a := set.Nodes[0]
	var titles []string
	for _, c := range a.Children {
		titles = append(titles, c.Title)
	}
	want := []string{"A.1", "A.2", "A.3"}
	if len(titles) != len(want) {
		t.Fatalf("children of A = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("child %d = %q, want %q", i, titles[i], want[i])
		}
	}
	if got := a.Children[0].Children; len(got) != 1 || got[0].Title != "A.1.x" {
		t.Errorf("grandchild not normalized: %+v", got)
	}
	if got := set.Nodes[1].Children; len(got) != 1 || got[0].Title != "B.1" {
		t.Errorf("children key not kept: %+v", got)
	}
}

func TestParse_CitationOrderPreserved(t *testing.T) {
	payload := `{"results": [{
		"title": "Điều 1",
		"answer": "**ok**",
		"documents": {
			"Luật Doanh nghiệp": [{"title": "Điều 5", "text": "line one\nline two"}],
			"Bộ luật Dân sự": [{"title": "Điều 9", "text": null}, {"title": "Điều 10"}],
			"Luật Đất đai": []
		}
	}]}`

	set, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	node := set.Nodes[0]
	sources := []string{"Luật Doanh nghiệp", "Bộ luật Dân sự", "Luật Đất đai"}
	if len(node.Citations) != len(sources) {
		t.Fatalf("got %d groups, want %d", len(node.Citations), len(sources))
	}
	for i, s := range sources {
		if node.Citations[i].Source != s {
			t.Errorf("group %d = %q, want %q", i, node.Citations[i].Source, s)
		}
	}

	first := node.Citations[0].Entries[0]
	if first.Text == nil || *first.Text != "line one\nline two" {
		t.Errorf("citation text = %v", first.Text)
	}
	for i, c := range node.Citations[1].Entries {
		if c.Text != nil {
			t.Errorf("entry %d: expected nil text, got %q", i, *c.Text)
		}
	}
	if node.Answer != "**ok**" {
		t.Errorf("Answer = %q", node.Answer)
	}
}

func TestParse_LegacyShapes(t *testing.T) {
	payload := `[{"question": "Điều 3 > Khoản 1", "answer": "x", "documents": ["Luật A", "Luật B"]}]`

	set, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.ProcessingTime != nil {
		t.Errorf("expected no processing time")
	}
	node := set.Nodes[0]
	if node.Title != "Điều 3 > Khoản 1" {
		t.Errorf("Title = %q", node.Title)
	}
	if len(node.Citations) != 2 || node.Citations[1].Source != "Luật B" || len(node.Citations[1].Entries) != 0 {
		t.Errorf("unexpected citations: %+v", node.Citations)
	}

	set, err = Parse([]byte(`{"results": [], "processing_time": 3}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.ProcessingTime == nil || *set.ProcessingTime != 3 {
		t.Errorf("processing_time not read")
	}
}

func TestParse_MissingFieldsAreEmpty(t *testing.T) {
	set, err := Parse([]byte(`{"results": [{"title": "Điều 1", "citations": {}, "children": []}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	n := set.Nodes[0]
	if n.Answer != "" || len(n.Citations) != 0 || len(n.Children) != 0 {
		t.Errorf("expected empty node, got %+v", n)
	}
	if HasContent(n) {
		t.Error("HasContent should be false")
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{``, `{`, `"x"`, `{"results": [1]}`, `{"results": [{"documents": 5}]}`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestWalk_OrderAndPaths(t *testing.T) {
	var got []string
	Walk(sampleTree(), func(p Path, n *models.ResultNode) bool {
		got = append(got, p.String()+"="+n.Title)
		return true
	})
	want := []string{"0=Điều 1", "0.0=Khoản 1", "0.1=Khoản 1", "0.1.0=Điểm a", "1=Điều 2"}
	if len(got) != len(want) {
		t.Fatalf("Walk = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("visit %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalk_SkipChildren(t *testing.T) {
	count := 0
	Walk(sampleTree(), func(p Path, _ *models.ResultNode) bool {
		count++
		return len(p) < 2
	})
	if count != 4 {
		t.Errorf("visited %d nodes, want 4", count)
	}
}

func TestFindByPath(t *testing.T) {
	nodes := sampleTree()
	tests := []struct {
		path  Path
		title string
	}{
		{Path{0}, "Điều 1"},
		{Path{0, 1, 0}, "Điểm a"},
		{Path{1}, "Điều 2"},
		{Path{2}, ""},
		{Path{0, 5}, ""},
		{Path{}, ""},
	}
	for _, tt := range tests {
		n := FindByPath(nodes, tt.path)
		if tt.title == "" {
			if n != nil {
				t.Errorf("FindByPath(%v) = %q, want nil", tt.path, n.Title)
			}
			continue
		}
		if n == nil || n.Title != tt.title {
			t.Errorf("FindByPath(%v) = %v, want %q", tt.path, n, tt.title)
		}
	}
}

func TestCountDepthFlatten(t *testing.T) {
	nodes := sampleTree()
	if got := CountNodes(nodes); got != 5 {
		t.Errorf("CountNodes = %d, want 5", got)
	}
	if got := Depth(nodes); got != 3 {
		t.Errorf("Depth = %d, want 3", got)
	}
	if got := Depth(nil); got != 0 {
		t.Errorf("Depth(nil) = %d", got)
	}
	flat := Flatten(nodes)
	if len(flat) != 5 {
		t.Errorf("Flatten returned %d nodes", len(flat))
	}
	if flat["0.0"] == flat["0.1"] {
		t.Error("duplicate titles must map to distinct nodes")
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"0.12.3", true},
		{"", true},
		{"a.1", false},
		{"1.-2", false},
	}
	for _, tt := range tests {
		p, ok := ParsePath(tt.in)
		if ok != tt.ok {
			t.Errorf("ParsePath(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
		if ok && p.String() != tt.in {
			t.Errorf("round trip %q -> %q", tt.in, p.String())
		}
	}
}
