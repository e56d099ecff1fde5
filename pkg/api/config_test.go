package api

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	type pair struct {
		Name string `json:"name"`
	}
	got, err := Normalize([]pair{{Name: "col2"}})
	if err != nil {
		t.Fatal(err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected []any of length 1, got %#v", got)
	}
	if m, ok := list[0].(map[string]any); !ok || m["name"] != "col2" {
		t.Fatalf("unexpected element %#v", list[0])
	}

	n, err := Normalize(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(float64); !ok {
		t.Fatalf("expected float64 after normalization, got %T", n)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, v := range []any{math.NaN(), func() {}, make(chan int)} {
		if _, err := Normalize(v); !errors.Is(err, ErrNotRoundTrippable) {
			t.Fatalf("Normalize(%T): expected ErrNotRoundTrippable, got %v", v, err)
		}
	}
}

func TestChangedKeys(t *testing.T) {
	old := Config{"a": 1.0, "b": "x", "c": []any{"k"}}
	new := Config{"a": 1.0, "b": "y", "d": true, "c": []any{"k"}}
	got := ChangedKeys(old, new)
	want := []string{"b", "d"}
	if !slices.Equal(got, want) {
		t.Fatalf("ChangedKeys = %v, want %v", got, want)
	}
	if keys := ChangedKeys(new, new.Clone()); len(keys) != 0 {
		t.Fatalf("expected no changes against a clone, got %v", keys)
	}
}

func TestConfigCloneIsDeep(t *testing.T) {
	c := Config{"variableResults": []any{map[string]any{"name": "a"}}}
	cl := c.Clone()
	cl["variableResults"].([]any)[0].(map[string]any)["name"] = "b"
	if c.Names("variableResults")[0] != "a" {
		t.Fatal("clone shares nested state with the original")
	}
}

func TestConfigAccessors(t *testing.T) {
	c := Config{
		"variableResults": []any{map[string]any{"name": "x"}, "y"},
		"trainSize":       0.8,
		"approved":        true,
		"empty":           []any{},
		"modelName":       "",
	}
	if !slices.Equal(c.Names("variableResults"), []string{"x", "y"}) {
		t.Fatalf("Names = %v", c.Names("variableResults"))
	}
	if f, ok := c.Float("trainSize"); !ok || f != 0.8 {
		t.Fatalf("Float = %v, %v", f, ok)
	}
	if !c.Bool("approved") {
		t.Fatal("expected approved")
	}
	if c.Has("empty") || c.Has("modelName") || c.Has("missing") {
		t.Fatal("empty values must not count as set")
	}
	if !(Config(nil)).Equal(Config{}) {
		t.Fatal("nil and empty config should be equal")
	}
}

func TestMergeConfig(t *testing.T) {
	merged := MergeConfig(Config{"a": 1.0, "b": 2.0}, Config{"b": 3.0})
	if merged["a"] != 1.0 || merged["b"] != 3.0 {
		t.Fatalf("unexpected merge %v", merged)
	}
}
