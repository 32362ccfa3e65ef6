package fileio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStimulusWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.stim.csv")
	f := NewStimulusFile(path)

	in := &Stimulus{
		Type:    StimulusVideo,
		Path:    "video_file",
		Title:   "video stimuli",
		Columns: []Column{IntColumn("stimID", 1, 3, 5)},
	}
	if err := f.Write(in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if out.Type != "video" {
		t.Errorf("expected type video, got %q", out.Type)
	}
	if out.Path != "video_file" {
		t.Errorf("expected path video_file, got %q", out.Path)
	}
	if out.Title != "video stimuli" {
		t.Errorf("expected title %q, got %q", "video stimuli", out.Title)
	}
	col, ok := out.Column("stimID")
	if !ok {
		t.Fatal("stimID column missing")
	}
	if col.Kind != KindInt {
		t.Fatalf("expected int column, got %s", col.Kind)
	}
	want := []int64{1, 3, 5}
	if len(col.Ints) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(col.Ints))
	}
	for i := range want {
		if col.Ints[i] != want[i] {
			t.Errorf("row %d: expected %d, got %d", i, want[i], col.Ints[i])
		}
	}
}

func TestStimulusRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagenet.stim.csv")
	content := "type=image\n" +
		"path=/data/imagenet\n" +
		"title=ImageNet images in all 5000scenes runs of sub-CSI1_ses-01\n" +
		"data=stimID,RT\n" +
		"n01930112_19568.JPEG,3.6309\n" +
		"n03733281_29214.JPEG,4.2031\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	stim, err := NewStimulusFile(path).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stim.Type != StimulusImage {
		t.Errorf("expected type image, got %q", stim.Type)
	}
	if stim.Rows() != 2 {
		t.Fatalf("expected 2 rows, got %d", stim.Rows())
	}

	ids, _ := stim.Column("stimID")
	if ids.Kind != KindString || ids.Strings[0] != "n01930112_19568.JPEG" || ids.Strings[1] != "n03733281_29214.JPEG" {
		t.Errorf("unexpected stimID column %+v", ids)
	}
	rt, _ := stim.Column("RT")
	if rt.Kind != KindFloat || rt.Floats[0] != 3.6309 || rt.Floats[1] != 4.2031 {
		t.Errorf("unexpected RT column %+v", rt)
	}
}

func TestStimulusPreservesNumericKinds(t *testing.T) {
	in := &Stimulus{
		Type: StimulusImage,
		Columns: []Column{
			StringColumn("stimID", "a.png", "b, with comma.png"),
			FloatColumn("onset", 0, 2.5),
			IntColumn("label", -1, 7),
		},
	}
	var sb strings.Builder
	if err := EncodeStimulus(&sb, in); err != nil {
		t.Fatalf("EncodeStimulus failed: %v", err)
	}
	if strings.Contains(sb.String(), "path=") || strings.Contains(sb.String(), "title=") {
		t.Errorf("empty optional headers should be omitted:\n%s", sb.String())
	}

	out, err := DecodeStimulus(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("DecodeStimulus failed: %v", err)
	}
	for i, c := range out.Columns {
		if c.Kind != in.Columns[i].Kind {
			t.Errorf("column %s: expected %s, got %s", c.Name, in.Columns[i].Kind, c.Kind)
		}
	}
	onset, _ := out.Column("onset")
	if onset.Floats[0] != 0 || onset.Floats[1] != 2.5 {
		t.Errorf("unexpected onset values %v", onset.Floats)
	}
	ids, _ := out.Column("stimID")
	if ids.Strings[1] != "b, with comma.png" {
		t.Errorf("expected quoted value to survive, got %q", ids.Strings[1])
	}
}

func TestStimulusRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad type":     "type=audio\ndata=stimID\n1\n",
		"no data":      "type=image\n",
		"unknown key":  "type=image\nowner=me\ndata=stimID\n1\n",
		"ragged row":   "type=image\ndata=stimID,RT\n1\n",
		"not a header": "image\ndata=stimID\n1\n",
	}
	for name, content := range cases {
		if _, err := DecodeStimulus(strings.NewReader(content)); !errors.Is(err, ErrInvalidStimulus) {
			t.Errorf("%s: expected ErrInvalidStimulus, got %v", name, err)
		}
	}

	ragged := &Stimulus{
		Type:    StimulusImage,
		Columns: []Column{IntColumn("a", 1, 2), IntColumn("b", 1)},
	}
	if err := EncodeStimulus(&strings.Builder{}, ragged); !errors.Is(err, ErrInvalidStimulus) {
		t.Errorf("expected ErrInvalidStimulus for ragged columns, got %v", err)
	}
}

func TestStimulusKeepsEmptyStrings(t *testing.T) {
	in := &Stimulus{
		Type:    StimulusImage,
		Columns: []Column{StringColumn("stimID", "a", "", "c")},
	}
	var sb strings.Builder
	if err := EncodeStimulus(&sb, in); err != nil {
		t.Fatalf("EncodeStimulus failed: %v", err)
	}
	out, err := DecodeStimulus(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("DecodeStimulus failed: %v", err)
	}
	ids, _ := out.Column("stimID")
	if ids.Kind != KindString {
		t.Fatalf("expected string column, got %s", ids.Kind)
	}
	want := []string{"a", "", "c"}
	if len(ids.Strings) != len(want) {
		t.Fatalf("expected %d rows, got %d: %q", len(want), len(ids.Strings), ids.Strings)
	}
	for i := range want {
		if ids.Strings[i] != want[i] {
			t.Errorf("row %d: expected %q, got %q", i, want[i], ids.Strings[i])
		}
	}
}

func TestStimulusKeepsNumericLookingStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.stim.csv")
	f := NewStimulusFile(path)
	in := &Stimulus{
		Type: StimulusImage,
		Columns: []Column{
			StringColumn("stimID", "001", "002"),
			StringColumn("onset", "1.50", "say \"hi\""),
			IntColumn("run", 1, 2),
		},
	}
	if err := f.Write(in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	ids, _ := out.Column("stimID")
	if ids.Kind != KindString || ids.Strings[0] != "001" || ids.Strings[1] != "002" {
		t.Errorf("expected string ids 001 and 002, got %+v", ids)
	}
	onset, _ := out.Column("onset")
	if onset.Kind != KindString || onset.Strings[0] != "1.50" || onset.Strings[1] != `say "hi"` {
		t.Errorf("expected string onsets, got %+v", onset)
	}
	run, _ := out.Column("run")
	if run.Kind != KindInt || run.Ints[0] != 1 || run.Ints[1] != 2 {
		t.Errorf("expected int runs, got %+v", run)
	}
}
