package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplifyLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Perl (5)", "Perl"},
		{"C++14 (GCC 5.4.1)", "C++"},
		{"C++ 20 (gcc 12.2)", "C++"},
		{"Python3 (3.4.3)", "Python"},
		{"Rust (1.15.1)", "Rust"},
		{"Perl6 (rakudo-star 2016.01)", "Raku"},
		{"Haskell", "Haskell"},
		{"  Go  ", "Go"},
		{"Java8", "Java8"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SimplifyLanguage(tt.in))
		})
	}
}
