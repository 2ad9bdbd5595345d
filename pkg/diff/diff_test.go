package diff

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const fixture = `diff --git a/main.go b/main.go
index 83db48f..bf269f4 100644
--- a/main.go
+++ b/main.go
@@ -1,4 +1,5 @@
 package main
 
-func main() {}
+func main() {
+	run()
+}
diff --git a/run.go b/run.go
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/run.go
@@ -0,0 +1,2 @@
+package main
+func run() {}
`

func TestParse(t *testing.T) {
	s, err := Parse(fixture)
	require.NoError(t, err)
	require.Len(t, s.Files, 2)

	main := s.Files[0]
	require.Equal(t, "main.go", main.Path)
	require.Equal(t, StatusModified, main.Status)
	require.Equal(t, 3, main.Additions)
	require.Equal(t, 1, main.Deletions)
	require.Len(t, main.Hunks, 1)
	require.Equal(t, 1, main.Hunks[0].NewStart)

	run := s.Files[1]
	require.Equal(t, "run.go", run.Path)
	require.Equal(t, StatusAdded, run.Status)
	require.Equal(t, 2, run.Additions)

	require.Equal(t, 5, s.Additions)
	require.Equal(t, 1, s.Deletions)
	require.Equal(t, fixture, s.Raw)
}

func TestParse_HeaderOnlySections(t *testing.T) {
	raw := `diff --git a/docs/old.md b/docs/new.md
similarity index 100%
rename from docs/old.md
rename to docs/new.md
diff --git a/assets/logo.png b/assets/logo.png
new file mode 100644
index 0000000..9f2b8c1
Binary files /dev/null and b/assets/logo.png differ
diff --git a/assets/old.png b/assets/old.png
deleted file mode 100644
index 9f2b8c1..0000000
Binary files a/assets/old.png and /dev/null differ
diff --git a/run.sh b/run.sh
old mode 100644
new mode 100755
diff --git a/pkg/a.go b/pkg/b.go
similarity index 90%
rename from pkg/a.go
rename to pkg/b.go
index 1111111..2222222 100644
--- a/pkg/a.go
+++ b/pkg/b.go
@@ -1,2 +1,2 @@
 package pkg
-var x = 1
+var x = 2
`
	s, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, s.Files, 5)

	want := []FileChange{
		{Path: "docs/new.md", OldPath: "docs/old.md", Status: StatusRenamed},
		{Path: "assets/logo.png", Status: StatusAdded},
		{Path: "assets/old.png", Status: StatusDeleted},
		{Path: "run.sh", Status: StatusModified},
		{Path: "pkg/b.go", OldPath: "pkg/a.go", Status: StatusRenamed, Additions: 1, Deletions: 1},
	}
	for i, w := range want {
		got := s.Files[i]
		require.Equal(t, w.Path, got.Path, "file %d", i)
		require.Equal(t, w.OldPath, got.OldPath, "file %d", i)
		require.Equal(t, w.Status, got.Status, "file %d", i)
		require.Equal(t, w.Additions, got.Additions, "file %d", i)
		require.Equal(t, w.Deletions, got.Deletions, "file %d", i)
	}
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse("  \n")
	require.NoError(t, err)
	require.True(t, s.Empty())
}

func TestTruncate(t *testing.T) {
	raw := strings.Repeat("line\n", 10)

	require.Equal(t, raw, Truncate(raw, 0))
	require.Equal(t, raw, Truncate(raw, len(raw)))

	got := Truncate(raw, 12)
	require.True(t, strings.HasPrefix(got, "line\nline\n"))
	require.Contains(t, got, "(diff truncated)")
}

func TestTruncate_SingleLineKeepsRunes(t *testing.T) {
	raw := strings.Repeat("é", 10)

	got := Truncate(raw, 5)
	require.True(t, utf8.ValidString(got), "got %q", got)
	require.True(t, strings.HasPrefix(got, "éé"))
	require.Contains(t, got, "(diff truncated)")
}
