package matcher

import (
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// failingSeq yields data and then fails with err.
func failingSeq(data string, err error) iter.Seq2[byte, error] {
	return func(yield func(byte, error) bool) {
		for i := 0; i < len(data); i++ {
			if !yield(data[i], nil) {
				return
			}
		}
		yield(0, err)
	}
}

func mustCompile[A any](t *testing.T, rules []Rule[A], opts ...Option) *Trie[A] {
	t.Helper()
	trie, err := Compile(rules, opts...)
	require.NoError(t, err)
	return trie
}

func matchString[A any](t *testing.T, trie *Trie[A], input string) Selection[A] {
	t.Helper()
	s, err := trie.Match(String(input))
	require.NoError(t, err)
	return s
}

func TestMatch_ExactOrWildcard(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Text("hi"), Action: "greeting"},
		{Pattern: Wildcard(), Action: "other"},
	})

	cases := map[string]string{
		"hi":  "greeting",
		"hit": "other",
		"h":   "other",
		"":    "other",
		"x":   "other",
	}
	for input, want := range cases {
		s := matchString(t, trie, input)
		if s.Action != want {
			t.Errorf("Match(%q) = %q, want %q", input, s.Action, want)
		}
	}

	s := matchString(t, trie, "hit")
	require.Equal(t, ByFallback, s.By)
	require.Equal(t, 3, s.Consumed)
	require.Nil(t, s.Captured)
}

func TestMatch_PrefixCommitsBeforeLongerLiteral(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: PrefixOf(Text("ab")), Action: "P"},
		{Pattern: Text("abc"), Action: "E"},
		{Pattern: Wildcard(), Action: "W"},
	})

	src := String("abc")
	s, err := trie.Match(src)
	require.NoError(t, err)
	require.Equal(t, "P", s.Action)
	require.Equal(t, ByPrefix, s.By)
	require.Equal(t, 2, s.Consumed)

	// The byte after the prefix is still there for the caller.
	b, err := src.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('c'), b)

	require.Equal(t, "P", matchString(t, trie, "ab").Action)
	require.Equal(t, "W", matchString(t, trie, "a").Action)

	shadowed := trie.Shadowed()
	require.Len(t, shadowed, 1)
	require.Equal(t, 1, shadowed[0].Rule)
	require.Equal(t, 0, shadowed[0].By)
}

func TestMatch_ExactBeatsPrefixAtEnd(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: PrefixOf(Text("go")), Action: "prefix"},
		{Pattern: Text("go"), Action: "exact"},
		{Pattern: Wildcard(), Action: "other"},
	})

	require.Equal(t, "exact", matchString(t, trie, "go").Action)
	require.Equal(t, "prefix", matchString(t, trie, "gopher").Action)
	require.Empty(t, trie.Shadowed())
}

func TestMatch_BinderCapturesPath(t *testing.T) {
	trie := mustCompile(t, []Rule[int]{
		{Pattern: Text("x"), Action: 1},
		{Pattern: Binder("rest"), Action: -1},
	})

	eval := func(s Selection[int]) int {
		if s.Binding == "rest" {
			return len(s.Captured)
		}
		return s.Action
	}

	got, err := Run(trie, String("xy"), eval)
	require.NoError(t, err)
	require.Equal(t, 2, got)

	got, err = Run(trie, String(""), eval)
	require.NoError(t, err)
	require.Equal(t, 0, got)

	got, err = Run(trie, String("x"), eval)
	require.NoError(t, err)
	require.Equal(t, 1, got)

	s := matchString(t, trie, "xyz")
	require.Equal(t, "xy", string(s.Captured))
	require.Equal(t, "rest", s.Binding)
}

func TestMatch_BinderAtExhaustion(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Text("abc"), Action: "abc"},
		{Pattern: Binder("seen"), Action: "partial"},
	})

	s := matchString(t, trie, "ab")
	require.Equal(t, "partial", s.Action)
	require.Equal(t, "ab", string(s.Captured))
	require.Equal(t, 2, s.Consumed)
}

func TestCompile_DuplicatePattern(t *testing.T) {
	_, err := Compile([]Rule[int]{
		{Pattern: Text("a"), Action: 1},
		{Pattern: Text("a"), Action: 2},
		{Pattern: Wildcard(), Action: 0},
	})
	require.ErrorIs(t, err, ErrDuplicatePattern)
}

func TestCompile_IncompleteWithoutFallback(t *testing.T) {
	_, err := Compile([]Rule[int]{{Pattern: Text("a"), Action: 1}})
	require.ErrorIs(t, err, ErrIncompleteMatch)

	_, err = Compile([]Rule[int]{{Pattern: PrefixOf(Text("")), Action: 1}})
	require.ErrorIs(t, err, ErrIncompleteMatch)

	_, err = Compile[int](nil)
	require.ErrorIs(t, err, ErrIncompleteMatch)
}

func TestCompile_StructuralExhaustiveness(t *testing.T) {
	rules := []Rule[int]{
		{Pattern: PrefixOf(Text("")), Action: 1},
		{Pattern: Text(""), Action: 2},
	}

	_, err := Compile(rules)
	require.ErrorIs(t, err, ErrIncompleteMatch)

	trie := mustCompile(t, rules, WithStructuralExhaustiveness())
	require.Equal(t, 1, matchString(t, trie, "anything").Action)
	require.Equal(t, 2, matchString(t, trie, "").Action)

	// 256 single-byte literals still leave end of input open after them.
	all := make([]Rule[int], 0, 257)
	for b := 0; b < 256; b++ {
		all = append(all, Rule[int]{Pattern: Literal([]byte{byte(b)}), Action: b})
	}
	all = append(all, Rule[int]{Pattern: Text(""), Action: -1})
	_, err = Compile(all, WithStructuralExhaustiveness())
	require.ErrorIs(t, err, ErrIncompleteMatch)
}

func TestMatch_SourceFailureShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Text("ab"), Action: "ab"},
		{Pattern: PrefixOf(Text("ab")), Action: "ab-prefix"},
		{Pattern: Wildcard(), Action: "other"},
	})

	src := Seq(failingSeq("ab", boom))
	defer src.Close()

	_, err := trie.Match(src)
	require.ErrorIs(t, err, boom)

	var se *SourceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 2, se.Offset)
}

func TestMatch_FirstElementFailure(t *testing.T) {
	boom := errors.New("first")
	trie := mustCompile(t, []Rule[string]{
		{Pattern: PrefixOf(Text("")), Action: "everything"},
		{Pattern: Wildcard(), Action: "other"},
	})

	src := Seq(failingSeq("", boom))
	defer src.Close()

	got, err := Run(trie, src, func(s Selection[string]) string {
		t.Fatalf("eval called on failed source")
		return ""
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, got)
}

func TestMatch_Idempotent(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Or(Text("GET"), Text("PUT")), Action: "verb"},
		{Pattern: PrefixOf(Text("POST ")), Action: "post"},
		{Pattern: Binder("raw"), Action: "raw"},
	})

	for _, input := range []string{"GET", "PUT", "POST /x", "PATCH", "", "GETS"} {
		first := matchString(t, trie, input)
		second := matchString(t, trie, input)
		require.Equal(t, first, second, "input %q", input)
	}
}

func TestMatch_ConcurrentReaders(t *testing.T) {
	trie := mustCompile(t, []Rule[int]{
		{Pattern: Text("alpha"), Action: 1},
		{Pattern: Text("beta"), Action: 2},
		{Pattern: PrefixOf(Text("gam")), Action: 3},
		{Pattern: Binder("s"), Action: 0},
	})

	inputs := map[string]int{"alpha": 1, "beta": 2, "gamma": 3, "delta": 0, "alp": 0}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for in, want := range inputs {
					s, err := trie.Match(String(in))
					if err != nil || s.Action != want {
						t.Errorf("Match(%q) = %d, %v; want %d", in, s.Action, err, want)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

// countingReader records how many bytes were pulled.
type countingReader struct {
	data []byte
	pos  int
}

func (r *countingReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func TestMatch_ReadsNoFurtherThanNeeded(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Text("abc"), Action: "abc"},
		{Pattern: Wildcard(), Action: "other"},
	})

	// Mismatch on the second byte stops the walk there.
	r := &countingReader{data: []byte("axxxxxx")}
	s, err := trie.Match(Pushback(r))
	require.NoError(t, err)
	require.Equal(t, "other", s.Action)
	require.Equal(t, 2, r.pos)

	// Exact needs one more pull to see the end.
	r = &countingReader{data: []byte("abc")}
	s, err = trie.Match(Pushback(r))
	require.NoError(t, err)
	require.Equal(t, "abc", s.Action)
	require.Equal(t, 3, r.pos)
}

func TestMatch_RepeatedOnSharedSource(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Or(PrefixOf(Text(" ")), PrefixOf(Text("\t"))), Action: "ws"},
		{Pattern: Wildcard(), Action: "other"},
	})

	sources := map[string]func(string) io.ByteScanner{
		"pushback": func(s string) io.ByteScanner { return Pushback(&countingReader{data: []byte(s)}) },
		"reader":   func(s string) io.ByteScanner { return Reader(plainReader{strings.NewReader(s)}) },
		"seq": func(s string) io.ByteScanner {
			return Seq(func(yield func(byte, error) bool) {
				for i := 0; i < len(s); i++ {
					if !yield(s[i], nil) {
						return
					}
				}
			})
		},
	}
	for name, open := range sources {
		src := open("  \tx")
		var got []string
		for i := 0; i < 4; i++ {
			s, err := trie.Match(src)
			require.NoError(t, err, name)
			got = append(got, s.Action)
		}
		require.Equal(t, []string{"ws", "ws", "ws", "other"}, got, name)
	}
}

func TestMatch_PrefixLeavesNextByteForCaller(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: PrefixOf(Text("ab")), Action: "ab"},
		{Pattern: Wildcard(), Action: "other"},
	})

	r := &countingReader{data: []byte("abc")}
	src := Pushback(r)
	s, err := trie.Match(src)
	require.NoError(t, err)
	require.Equal(t, "ab", s.Action)
	require.Equal(t, 2, s.Consumed)

	b, err := src.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('c'), b)
	require.Equal(t, 3, r.pos)
}

func TestMatch_UnreadFailureIsSourceError(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: PrefixOf(Text("a")), Action: "a"},
		{Pattern: Wildcard(), Action: "other"},
	})

	_, err := trie.Match(noUnread{&countingReader{data: []byte("ab")}})
	require.ErrorIs(t, err, errInvalidUnread)
	var se *SourceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 1, se.Offset)
}

// noUnread claims to be a scanner but can never push back.
type noUnread struct{ io.ByteReader }

func (noUnread) UnreadByte() error { return errInvalidUnread }

func TestTrie_Stats(t *testing.T) {
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Text("ab"), Action: "1"},
		{Pattern: Text("ac"), Action: "2"},
		{Pattern: Binder("b"), Action: "3"},
	})

	st := trie.Stats()
	require.Equal(t, 4, st.Nodes)
	require.Equal(t, 2, st.Entries)
	require.Equal(t, 2, st.MaxDepth)
	require.Equal(t, 4, st.FallbackSites)
	require.True(t, st.HasFallback)
	require.True(t, st.Binds)
}

func TestMatch_LongPathGrowsBuffer(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	trie := mustCompile(t, []Rule[string]{
		{Pattern: Literal(long), Action: "long"},
		{Pattern: Binder("b"), Action: "bound"},
	})

	s, err := trie.Match(Bytes(long))
	require.NoError(t, err)
	require.Equal(t, "long", s.Action)

	s, err = trie.Match(BytesCopy(append(long[:250:250], '!')))
	require.NoError(t, err)
	require.Equal(t, "bound", s.Action)
	require.Len(t, s.Captured, 251)
}

func TestMatch_CharAndByteLiterals(t *testing.T) {
	trie := mustCompile(t, []Rule[bool]{
		{Pattern: Or(
			PrefixOf(Byte('\t')),
			PrefixOf(Char(' ')),
			PrefixOf(Char('\u00a0')),
			PrefixOf(Char('\u3000')),
		), Action: true},
		{Pattern: Wildcard(), Action: false},
	})

	src := String("\t \u00a0\u3000x")
	var got []bool
	for i := 0; i < 5; i++ {
		s, err := trie.Match(src)
		require.NoError(t, err)
		got = append(got, s.Action)
	}
	require.Equal(t, []bool{true, true, true, true, false}, got)

	s := matchString(t, trie, "\u00a0")
	require.Equal(t, 2, s.Consumed)
	require.Equal(t, ByPrefix, s.By)
	require.Equal(t, "\xe3\x80\x80", string(Char('\u3000').lit))
}
