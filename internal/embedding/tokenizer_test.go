package embedding

import "testing"

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsToken || ids[3] != sepToken {
		t.Errorf("ids = %v", ids)
	}
	if attn[0] != 1 || attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention mask: %v", attn)
	}

	// Long input keeps room for [SEP].
	ids, attn, _ = tok.Tokenize("a b c d e f g h i j k l", 5)
	if ids[4] != sepToken || attn[4] != 1 {
		t.Errorf("truncated ids = %v", ids)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Foreign keys: patient_id references patients.id; __x__")
	want := []string{"foreign", "keys", "patient_id", "patient", "id", "references", "patients", "id", "x"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
	if len(Tokens("  ,, ")) != 0 {
		t.Error("punctuation only should yield no tokens")
	}
}

func TestWordID(t *testing.T) {
	for _, w := range []string{"patients", "id", "", "appointments"} {
		id := WordID(w)
		if id < firstWordID || id >= vocabSize {
			t.Errorf("WordID(%q) = %d out of range", w, id)
		}
		if WordID(w) != id {
			t.Errorf("WordID(%q) not deterministic", w)
		}
	}
}
