package model

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/madxbind/internal/config"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

const baseModel = `
model "base" {
  real       = false
  repository = "repo"
  init_files = ["base.madx"]

  beam "b1" {
    particle = "proton"
    energy   = 450
  }

  sequence "ring" {
    beam = "b1"

    range "all" {
      default_twiss = "start"

      twiss_initial "start" {
        betx = 10
        bety = 10
      }
    }
  }
}
`

const machineModel = `
model "machine" {
  extends          = ["base"]
  init_files       = ["machine.madx"]
  default_optic    = "inj"
  default_sequence = "ring"

  beam "b1" {
    energy = 7000
  }

  optic "inj" {
    init_files = ["inj.madx"]
  }

  sequence "ring" {
    default_range = "all"
    aperfiles     = ["aper.madx"]

    range "arc" {
      first       = "qf"
      last        = "qd"
      aper_offset = "offsets.tfs"
    }
  }
}
`

func number(t *testing.T, v cty.Value) float64 {
	t.Helper()
	require.Equal(t, cty.Number, v.Type())
	f, _ := v.AsBigFloat().Float64()
	return f
}

func TestLinearize(t *testing.T) {
	graph := map[string][]string{
		"d":     {"b", "c"},
		"b":     {"a"},
		"c":     {"a"},
		"a":     nil,
		"x":     {"a", "b"},
		"y":     {"x", "b"},
		"loop1": {"loop2"},
		"loop2": {"loop1"},
	}
	bases := func(n string) ([]string, error) {
		bs, ok := graph[n]
		if !ok {
			return nil, fmt.Errorf("unknown %q", n)
		}
		return bs, nil
	}

	order, err := linearize("d", bases)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, order)

	// x orders a before b, but b comes before its own base a.
	_, err = linearize("y", bases)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent extends order")

	_, err = linearize("loop1", bases)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extends itself")
}

func TestDirLocator_Definition(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"base.model.hcl":             baseModel,
		"machines/machine.model.hcl": machineModel,
		"notes.hcl":                  `ignored = true`,
	})
	l := NewDirLocator(root)

	names, err := l.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"machine"}, names)

	def, err := l.Definition("machine")
	require.NoError(t, err)

	assert.Equal(t, "machine", def.Name)
	assert.True(t, def.Real)
	assert.Equal(t, []string{"base"}, def.Extends)
	assert.Equal(t, []string{"base.madx", "machine.madx"}, def.InitFiles)
	assert.Equal(t, "inj", def.DefaultOptic)
	assert.Equal(t, "ring", def.DefaultSequence)
	assert.Equal(t, filepath.Join(root, "machines"), def.Dir)
	assert.Equal(t, filepath.Join(root, "machines", "repo"), def.Repository())

	beam := def.Beams["b1"]
	require.Len(t, beam, 2)
	assert.Equal(t, "proton", beam["particle"].AsString())
	assert.Equal(t, 7000.0, number(t, beam["energy"]))

	assert.Equal(t, []string{"inj.madx"}, def.Optics["inj"].InitFiles)

	ring := def.Sequences["ring"]
	require.NotNil(t, ring)
	assert.Equal(t, "b1", ring.Beam)
	assert.Equal(t, "all", ring.DefaultRange)
	assert.Equal(t, []string{"aper.madx"}, ring.Aperfiles)

	all := ring.Ranges["all"]
	require.NotNil(t, all)
	assert.Equal(t, "#s", all.First)
	assert.Equal(t, "#e", all.Last)
	assert.Equal(t, "start", all.DefaultTwiss)
	assert.Equal(t, 10.0, number(t, all.TwissInitial["start"]["betx"]))

	arc := ring.Ranges["arc"]
	require.NotNil(t, arc)
	assert.Equal(t, "qf", arc.First)
	assert.Equal(t, "qd", arc.Last)
	assert.Equal(t, "offsets.tfs", arc.AperOffset)
	assert.Empty(t, arc.TwissInitial)
}

func TestDirLocator_NotFound(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"base.model.hcl": baseModel,
	})
	l := NewDirLocator(root, filepath.Join(root, "missing"))

	names, err := l.ListModels()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"base", "nope"} {
		_, err := l.Definition(name)
		require.Error(t, err)
		var nf *errdefs.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, errdefs.KindModel, nf.Kind)
		assert.Equal(t, name, nf.Name)
	}
}

func TestDirLocator_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		files    map[string]string
		model    string
		expected []string
	}{
		{
			name:     "syntax error",
			files:    map[string]string{"bad.model.hcl": `model "x" {`},
			model:    "x",
			expected: []string{"failed to parse HCL file", "bad.model.hcl"},
		},
		{
			name:     "unknown block",
			files:    map[string]string{"bad.model.hcl": "model \"x\" {\n  lattice \"y\" {}\n}\n"},
			model:    "x",
			expected: []string{"failed to decode HCL file"},
		},
		{
			name: "duplicate model",
			files: map[string]string{
				"a.model.hcl": `model "x" {}`,
				"b.model.hcl": `model "x" {}`,
			},
			model:    "x",
			expected: []string{`model "x" defined in both`},
		},
		{
			name:     "unknown base",
			files:    map[string]string{"x.model.hcl": `model "x" { extends = ["ghost"] }`},
			model:    "x",
			expected: []string{`extends unknown model "ghost"`},
		},
		{
			name: "dangling references",
			files: map[string]string{"x.model.hcl": `
model "x" {
  default_optic    = "inj"
  default_sequence = "ring"

  sequence "line" {
    beam          = "b9"
    default_range = "r9"

    range "bad" {
      first         = "q f"
      default_twiss = "t9"
    }
  }
}`},
			model: "x",
			expected: []string{
				`default optic "inj" is not defined`,
				`default sequence "ring" is not defined`,
				`sequence "line": beam "b9" is not defined`,
				`sequence "line": default range "r9" is not defined`,
				`invalid range selector: "q f"`,
				`twiss_initial "t9" is not defined`,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := testutil.WriteFiles(t, tc.files)
			_, err := NewDirLocator(root).Definition(tc.model)
			require.Error(t, err)
			for _, want := range tc.expected {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestDefinition_RepositoryFromDBDirs(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"m.model.hcl": `
model "m" {
  repository = "repo"
  dbdirs     = ["missing", "db"]
}`,
		"db/repo/seq.madx": "",
	})

	def, err := NewDirLocator(root).Definition("m")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "db", "repo"), def.Repository())
}

func TestDirLocator_Invalidate(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"a.model.hcl": `model "a" {}`,
	})
	l := NewDirLocator(root)

	names, err := l.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)

	testutil.WriteFilesIn(t, root, map[string]string{"b.model.hcl": `model "b" {}`})
	names, err = l.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names, "cached until invalidated")

	l.Invalidate()
	names, err = l.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestNewLocator_UsesModelPaths(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"one/a.model.hcl":   `model "a" {}`,
		"two/b.model.hcl":   `model "b" {}`,
		"three/c.model.hcl": `model "c" {}`,
	})
	cfg := config.Default()
	cfg.ModelPaths = []string{filepath.Join(root, "one"), filepath.Join(root, "two")}

	names, err := NewLocator(cfg).ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestChainLocator(t *testing.T) {
	first := NewDirLocator(testutil.WriteFiles(t, map[string]string{
		"m.model.hcl": `
model "shared" { init_files = ["first.madx"] }
model "one" {}`,
	}))
	second := NewDirLocator(testutil.WriteFiles(t, map[string]string{
		"m.model.hcl": `
model "shared" { init_files = ["second.madx"] }
model "two" {}`,
	}))
	chain := ChainLocator{first, second}

	names, err := chain.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "shared", "two"}, names)

	def, err := chain.Definition("shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"first.madx"}, def.InitFiles)

	def, err = chain.Definition("two")
	require.NoError(t, err)
	assert.Equal(t, "two", def.Name)

	_, err = chain.Definition("three")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
