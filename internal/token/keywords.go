package token

// keywords is indexed [len(word)-1] for lengths 1-8 (the last bucket holds
// the 10-letter "implements"; see Lookup) the way the teacher's frontend/lang.go
// rw table is: "indexing by length and searching should be faster than
// using a hash table" for the short, fixed keyword set of a systems
// language. TML has a larger keyword list than the teacher's VSL, but the
// same shape holds.
var keywords = [...][]struct {
	word string
	kind Kind
}{
	// length 1
	{},
	// length 2
	{
		{"or", KW_OR}, {"is", KW_IS}, {"in", KW_IN}, {"to", KW_TO}, {"do", KW_DO},
		{"if", KW_IF}, {"as", KW_AS},
	},
	// length 3
	{
		{"var", KW_VAR}, {"let", KW_LET}, {"mod", KW_MOD}, {"use", KW_USE},
		{"for", KW_FOR}, {"ref", KW_REF}, {"mut", KW_MUT}, {"ptr", KW_PTR},
		{"and", KW_AND}, {"pub", KW_PUB}, {"not", KW_NOT}, {"new", KW_NEW},
		{"get", KW_GET}, {"set", KW_SET},
	},
	// length 4
	{
		{"func", KW_FUNC}, {"enum", KW_ENUM}, {"else", KW_ELSE}, {"when", KW_WHEN},
		{"loop", KW_LOOP}, {"base", KW_BASE}, {"true", KW_TRUE}, {"type", KW_TYPE},
		{"impl", KW_IMPL},
	},
	// length 5
	{
		{"const", KW_CONST}, {"while", KW_WHILE},
		{"break", KW_BREAK}, {"async", KW_ASYNC}, {"class", KW_CLASS}, {"false", KW_FALSE},
		{"where", KW_WHERE}, {"union", KW_UNION},
	},
	// length 6
	{
		{"return", KW_RETURN}, {"struct", KW_STRUCT}, {"static", KW_STATIC},
	},
	// length 7
	{
		{"through", KW_THROUGH}, {"virtual", KW_VIRTUAL}, {"extends", KW_EXTENDS},
	},
	// length 8
	{
		{"continue", KW_CONTINUE}, {"behavior", KW_BEHAVIOR}, {"lowlevel", KW_LOWLEVEL},
		{"override", KW_OVERRIDE},
	},
	// length 10
	{
		{"implements", KW_IMPLEMENTS},
	},
}

// keywordSpellings maps a keyword Kind back to its canonical spelling, used
// by Kind.String() for diagnostics ("expected keyword 'virtual'").
var keywordSpellings = func() map[Kind]string {
	m := make(map[Kind]string, 64)
	for _, bucket := range keywords {
		for _, kw := range bucket {
			if kw.kind != IDENT {
				m[kw.kind] = kw.word
			}
		}
	}
	return m
}()

// Lookup reports whether s is a reserved word, returning its Kind if so.
// Mirrors the teacher's isKeyword: index by length first, then scan the
// (small) bucket for that length. Since "implements" (len 10) breaks the
// otherwise-contiguous length run, there is no bucket for length 9: the
// length-10 bucket is the last entry (index 8) and is looked up as a
// special case.
func Lookup(s string) (Kind, bool) {
	n := len(s)
	if n == 0 {
		return IDENT, false
	}
	switch {
	case n <= 8:
		for _, kw := range keywords[n-1] {
			if kw.word == s {
				return kw.kind, true
			}
		}
	case n == 10:
		for _, kw := range keywords[8] {
			if kw.word == s {
				return kw.kind, true
			}
		}
	}
	return IDENT, false
}
