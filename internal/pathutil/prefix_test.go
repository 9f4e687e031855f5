package pathutil

import "testing"

func TestCommonPrefix(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"none", nil, ""},
		{"single", []string{"/a/b/c"}, "/a/b/c"},
		{"siblings", []string{"/a/b/x", "/a/b/y", "/a/c/z"}, "/a/"},
		{"multibyte", []string{"héllo/1", "héllo/2"}, "héllo/"},
		{"multibyte differs in last byte", []string{"é", "è"}, ""},
		{"shorter is prefix", []string{"/docs/a", "/docs/a/b"}, "/docs/a"},
		{"identical", []string{"/x", "/x"}, "/x"},
		{"disjoint", []string{"a", "b"}, ""},
		{"empty member", []string{"/a", ""}, ""},
		{"mid segment", []string{"/docs/a.txt", "/docs/ab.txt"}, "/docs/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommonPrefix(tt.paths...); got != tt.want {
				t.Errorf("CommonPrefix(%q) = %q, want %q", tt.paths, got, tt.want)
			}
		})
	}
}

func TestCommonPrefixOrderIndependent(t *testing.T) {
	paths := []string{"/srv/files/b/1", "/srv/files/a", "/srv/files/b/2", "/srv/fil"}
	want := CommonPrefix(paths...)
	if want != "/srv/fil" {
		t.Fatalf("CommonPrefix = %q", want)
	}

	perms := [][]string{
		{paths[3], paths[2], paths[1], paths[0]},
		{paths[1], paths[3], paths[0], paths[2]},
		{paths[2], paths[0], paths[3], paths[1]},
	}
	for _, p := range perms {
		if got := CommonPrefix(p...); got != want {
			t.Errorf("CommonPrefix(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestCommonPrefixAssociative(t *testing.T) {
	a, b, c := "/a/b/ü/x", "/a/b/ü/y", "/a/b/u"
	left := CommonPrefix2(CommonPrefix2(a, b), c)
	right := CommonPrefix2(a, CommonPrefix2(b, c))
	if left != right || left != CommonPrefix(a, b, c) {
		t.Errorf("left=%q right=%q fold=%q", left, right, CommonPrefix(a, b, c))
	}
}

func TestNormalize(t *testing.T) {
	decomposed := "he\u0301llo/1"
	composed := "h\u00e9llo/2"
	if got := CommonPrefix(Normalize(decomposed), Normalize(composed)); got != "h\u00e9llo/" {
		t.Errorf("normalized prefix = %q", got)
	}
	if got := CommonPrefix(decomposed, composed); got != "h" {
		t.Errorf("raw prefix = %q, want h", got)
	}
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		path, prefix, want string
	}{
		{"/docs/a.txt", "/docs/", "a.txt"},
		{"/docs/sub/b.txt", "/docs/", "sub/b.txt"},
		{"/a/b/c", "/a/b/c", "c"},
		{"/docs/", "/docs/", "docs"},
		{"/docs/sub/", "/docs/", "sub"},
		{"/docs//a.txt", "/docs/", "a.txt"},
		{"/x/y", "/x", "y"},
		{"/other/z", "/docs/", "other/z"},
		{"/", "/", ""},
	}

	for _, tt := range tests {
		if got := EntryName(tt.path, tt.prefix); got != tt.want {
			t.Errorf("EntryName(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestJoinEntry(t *testing.T) {
	if got := JoinEntry("dir", "f.txt"); got != "dir/f.txt" {
		t.Errorf("JoinEntry = %q", got)
	}
	if got := JoinEntry("", "f.txt"); got != "f.txt" {
		t.Errorf("JoinEntry with empty parent = %q", got)
	}
}

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b", false},
		{"/a/../b", true},
		{"./a", true},
		{"/a/.hidden", false},
		{"..", true},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.path); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"/a//b/":  "a/b",
		"":        "",
		"/":       "",
		"a/b":     "a/b",
		"//x///y": "x/y",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}
