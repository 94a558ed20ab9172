package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func opsByName(ops []MirrorConfigChange) map[string]DiffOp {
	m := make(map[string]DiffOp, len(ops))
	for _, op := range ops {
		m[op.Mirror.Name] = op.Op
	}
	return m
}

func TestDiffEqualConfigsNoOps(t *testing.T) {
	list := []MirrorConfig{{Name: "debian"}, {Name: "fedora"}, {Name: "archlinux"}}
	assert.Empty(t, Diff(list, list))
}

func TestDiffEmptyOldAllAdd(t *testing.T) {
	newList := []MirrorConfig{{Name: "debian"}, {Name: "fedora"}}
	ops := Diff(nil, newList)
	assert.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, DiffAdd, op.Op)
	}
}

func TestDiffEmptyNewAllDelete(t *testing.T) {
	oldList := []MirrorConfig{{Name: "debian"}, {Name: "fedora"}}
	ops := Diff(oldList, nil)
	assert.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, DiffDelete, op.Op)
	}
}

func TestDiffAddDeleteModify(t *testing.T) {
	oldList := []MirrorConfig{
		{Name: "debian"},
		{Name: "debian-security"},
		{Name: "fedora"},
		{Name: "archlinux"},
		{Name: "AOSP", Env: map[string]string{"REPO": "/usr/bin/repo"}},
		{Name: "ubuntu"},
	}
	newList := []MirrorConfig{
		{Name: "debian"},
		{Name: "debian-cd"},
		{Name: "archlinuxcn"},
		{Name: "AOSP", Env: map[string]string{"REPO": "/usr/local/bin/aosp-repo"}},
		{Name: "ubuntu-ports"},
	}

	ops := Diff(oldList, newList)
	byName := opsByName(ops)

	assert.Equal(t, DiffModify, byName["AOSP"])
	assert.Equal(t, DiffDelete, byName["debian-security"])
	assert.Equal(t, DiffDelete, byName["fedora"])
	assert.Equal(t, DiffDelete, byName["archlinux"])
	assert.Equal(t, DiffDelete, byName["ubuntu"])
	assert.Equal(t, DiffAdd, byName["debian-cd"])
	assert.Equal(t, DiffAdd, byName["archlinuxcn"])
	assert.Equal(t, DiffAdd, byName["ubuntu-ports"])
	_, unchanged := byName["debian"]
	assert.False(t, unchanged)

	// Each name appears in at most one operation.
	seen := make(map[string]int)
	for _, op := range ops {
		seen[op.Mirror.Name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "name %q appeared %d times", name, count)
	}
}
