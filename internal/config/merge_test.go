package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveMirrorsNoChildren(t *testing.T) {
	root := MirrorConfig{Name: "debian"}
	leaves := RecursiveMirrors(root)
	require.Len(t, leaves, 1)
	assert.Equal(t, "debian", leaves[0].Name)
}

func TestRecursiveMirrorsChildOverridesParent(t *testing.T) {
	root := MirrorConfig{
		Name:     "archlinux",
		Upstream: "rsync://parent/",
		Interval: intPtr(60),
		ChildMirrors: []MirrorConfig{
			{Name: "archlinux-cn", Upstream: "rsync://child/"},
		},
	}
	leaves := RecursiveMirrors(root)
	require.Len(t, leaves, 1)
	leaf := leaves[0]
	assert.Equal(t, "archlinux-cn", leaf.Name)
	assert.Equal(t, "rsync://child/", leaf.Upstream)
	require.NotNil(t, leaf.Interval)
	assert.Equal(t, 60, *leaf.Interval) // inherited, child left unset
}

func TestRecursiveMirrorsGrandchildWinsOverGrandparent(t *testing.T) {
	root := MirrorConfig{
		Name:     "a",
		Upstream: "rsync://a/",
		ChildMirrors: []MirrorConfig{
			{
				Name: "b",
				ChildMirrors: []MirrorConfig{
					{Name: "c", Upstream: "rsync://c/"},
				},
			},
		},
	}
	leaves := RecursiveMirrors(root)
	require.Len(t, leaves, 1)
	assert.Equal(t, "c", leaves[0].Name)
	assert.Equal(t, "rsync://c/", leaves[0].Upstream)
}

func TestApplyGlobalDefaultsUnrecognizedRole(t *testing.T) {
	m := MirrorConfig{Name: "foo", Role: "weird"}
	out := ApplyGlobalDefaults(m, GlobalConfig{})
	assert.Equal(t, RoleMaster, out.Role)
}

func TestApplyGlobalDefaultsMirrorDir(t *testing.T) {
	m := MirrorConfig{Name: "debian", MirrorSubDir: "linux"}
	out := ApplyGlobalDefaults(m, GlobalConfig{MirrorDir: "/data"})
	assert.Equal(t, "/data/linux/debian", out.MirrorDir)
}

func TestResolveDuplicateNameErrors(t *testing.T) {
	cfg := &Config{MirrorsRaw: []MirrorConfig{{Name: "a"}, {Name: "a"}}}
	err := Resolve(cfg)
	assert.Error(t, err)
}
