package channels

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesNames(t *testing.T) {
	t.Parallel()
	path := writeConf(t, `# DVB-T Paris
TF1:586000000:INVERSION_AUTO:BANDWIDTH_8_MHZ:FEC_2_3:FEC_1_2:QAM_16
France 2:586000000:INVERSION_AUTO:BANDWIDTH_8_MHZ:FEC_2_3:FEC_1_2:QAM_16

  Arte:474000000:INVERSION_AUTO:BANDWIDTH_8_MHZ:FEC_2_3:FEC_1_2:QAM_16
`)
	list, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"TF1", "France 2", "Arte"}
	if !reflect.DeepEqual(list.Names(), want) {
		t.Fatalf("names = %v, want %v", list.Names(), want)
	}
	if list.Len() != 3 {
		t.Fatalf("len = %d", list.Len())
	}
	if !list.Contains("France 2") || list.Contains("M6") {
		t.Fatal("membership check wrong")
	}
}

func TestLoadLineWithoutColon(t *testing.T) {
	t.Parallel()
	// A bare name with no tuning fields still counts; the name is
	// everything up to the first colon.
	path := writeConf(t, "JustAName\n")
	list, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !list.Contains("JustAName") {
		t.Fatal("bare line lost")
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	t.Parallel()
	path := writeConf(t, "# only comments\n\n")
	if _, err := Load(path); err == nil {
		t.Fatal("empty channel list should be rejected")
	}
}

func TestLoadRejectsDuplicates(t *testing.T) {
	t.Parallel()
	path := writeConf(t, "TF1:1:2\nTF1:3:4\n")
	if _, err := Load(path); err == nil {
		t.Fatal("duplicate channel should be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.conf")); err == nil {
		t.Fatal("missing file should be an error")
	}
}

func TestAt(t *testing.T) {
	t.Parallel()
	list, err := New([]string{"TF1", "Arte"})
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := list.At(1); !ok || name != "Arte" {
		t.Fatalf("At(1) = %q, %v", name, ok)
	}
	if _, ok := list.At(-1); ok {
		t.Fatal("negative index accepted")
	}
	if _, ok := list.At(2); ok {
		t.Fatal("out of range index accepted")
	}
}

func TestNamesIsACopy(t *testing.T) {
	t.Parallel()
	list, err := New([]string{"TF1"})
	if err != nil {
		t.Fatal(err)
	}
	names := list.Names()
	names[0] = "mutated"
	if !list.Contains("TF1") {
		t.Fatal("caller mutation leaked into the list")
	}
}
