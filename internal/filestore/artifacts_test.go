package filestore

import "testing"

func TestWriteReadArtifact_StringVerbatim(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteArtifact("job1", "caption", "hello world"); err != nil {
		t.Fatalf("WriteArtifact() = %v", err)
	}
	got, err := s.ReadArtifacts("job1")
	if err != nil {
		t.Fatalf("ReadArtifacts() = %v", err)
	}
	if got["caption"] != "hello world" {
		t.Errorf("ReadArtifacts()[caption] = %v, want %q", got["caption"], "hello world")
	}
}

func TestWriteReadArtifact_NonStringAsJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteArtifact("job2", "count", 42); err != nil {
		t.Fatalf("WriteArtifact() = %v", err)
	}
	got, err := s.ReadArtifacts("job2")
	if err != nil {
		t.Fatalf("ReadArtifacts() = %v", err)
	}
	num, ok := got["count"].(float64)
	if !ok || num != 42 {
		t.Errorf("ReadArtifacts()[count] = %v, want float64(42)", got["count"])
	}
}

func TestWriteArtifact_SanitizesName(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteArtifact("job3", "../../escape", "x"); err != nil {
		t.Fatalf("WriteArtifact() = %v", err)
	}
	got, err := s.ReadArtifacts("job3")
	if err != nil {
		t.Fatalf("ReadArtifacts() = %v", err)
	}
	if _, ok := got["escape"]; !ok {
		t.Errorf("ReadArtifacts() = %v, want sanitized key 'escape'", got)
	}
}

func TestReadArtifacts_PartialSetUntilAllPresent(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteArtifact("job4", "a", "1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadArtifacts("job4")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadArtifacts() = %v, want 1 entry before second write", got)
	}
	if err := s.WriteArtifact("job4", "b", "2"); err != nil {
		t.Fatal(err)
	}
	got, err = s.ReadArtifacts("job4")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadArtifacts() = %v, want 2 entries", got)
	}
}
