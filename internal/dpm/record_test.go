package dpm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchkit/dpm-relay/internal/dpm"
)

func TestNormalizeAmount(t *testing.T) {
	cases := map[string]string{
		"$1,234.5":   "1234.50",
		"12.34":      "12.34",
		"10":         "10.00",
		" $ 99.99 ":  "99.99",
		"0":          "0.00",
		"":           "0.00",
		"not-money":  "0.00",
		"1,000,000":  "1000000.00",
		"$0.1":       "0.10",
		"123.456":    "123.46",
	}
	for input, want := range cases {
		require.Equal(t, want, dpm.NormalizeAmount(input), "input %q", input)
	}
}

func TestMergeExistingFieldsWin(t *testing.T) {
	stored := dpm.Record{"a": "1"}
	stored.Merge(dpm.Record{"a": "2", "b": "3"})
	require.Equal(t, dpm.Record{"a": "1", "b": "3"}, stored)
}

func TestMergeFillsEmptyFields(t *testing.T) {
	stored := dpm.Record{"a": "", "b": "keep"}
	stored.Merge(dpm.Record{"a": "filled", "b": "discard"})
	require.Equal(t, "filled", stored["a"])
	require.Equal(t, "keep", stored["b"])
}

func TestCloneIsIndependent(t *testing.T) {
	orig := dpm.Record{"a": "1"}
	dup := orig.Clone()
	dup["a"] = "2"
	dup["b"] = "3"
	require.Equal(t, dpm.Record{"a": "1"}, orig)
}
