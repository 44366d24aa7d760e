package resource

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
)

type material struct {
	rtti.ObjectBase
	Shader string `objstream:"shader"`
}

type texture struct {
	rtti.ObjectBase
	Width  uint32 `objstream:"width"`
	Height uint32 `objstream:"height"`
}

type mesh struct {
	rtti.ObjectBase
	Name     string                `objstream:"name"`
	Vertices []float32             `objstream:"vertices"`
	Material rtti.ResourceRef      `objstream:"material"`
	Texture  rtti.AsyncResourceRef `objstream:"texture"`
	Blob     *stream.AsyncBuffer   `objstream:"blob"`
}

type scene struct {
	rtti.ObjectBase
	Title    string  `objstream:"title"`
	Main     *mesh   `objstream:"main"`
	Meshes   []*mesh `objstream:"meshes"`
	External *mesh   `objstream:"external"`

	postLoaded bool
}

func (s *scene) OnPostLoad(context.Context) error {
	s.postLoaded = true
	return nil
}

type folder struct {
	rtti.ObjectBase
	Label string  `objstream:"label"`
	Items []*mesh `objstream:"items"`
}

func newTestRegistry(t *testing.T) *rtti.Registry {
	t.Helper()
	reg := rtti.NewRegistry()
	_, err := reg.RegisterClass("Material", (*material)(nil))
	require.NoError(t, err)
	_, err = reg.RegisterClass("Texture", (*texture)(nil))
	require.NoError(t, err)
	_, err = reg.RegisterClass("Mesh", (*mesh)(nil))
	require.NoError(t, err)
	_, err = reg.RegisterClass("Scene", (*scene)(nil))
	require.NoError(t, err)
	return reg
}

// sceneFixture 是 scene -> box -> bolt 三层对象，外加一个不属于任何根的 stray。
type sceneFixture struct {
	reg      *rtti.Registry
	scene    *scene
	box      *mesh
	bolt     *mesh
	stray    *mesh
	material *rtti.ClassType
	texture  *rtti.ClassType
	blob     *stream.AsyncBuffer
}

func newSceneFixture(t *testing.T) *sceneFixture {
	t.Helper()
	reg := newTestRegistry(t)
	matClass, ok := reg.FindClass("Material")
	require.True(t, ok)
	texClass, ok := reg.FindClass("Texture")
	require.True(t, ok)

	f := &sceneFixture{
		reg:      reg,
		material: matClass,
		texture:  texClass,
		blob:     stream.NewAsyncBuffer([]byte("vertex data")),
	}
	f.scene = &scene{Title: "level"}
	f.box = &mesh{
		Name:     "box",
		Vertices: []float32{1, 2, 3},
		Material: rtti.ResourceRef{Path: "/materials/wood.mat", Class: matClass},
		Texture:  rtti.AsyncResourceRef{Path: "/textures/wood.tex", Class: texClass},
	}
	f.box.SetParent(f.scene)
	f.bolt = &mesh{Name: "bolt", Blob: f.blob}
	f.bolt.SetParent(f.box)
	f.stray = &mesh{Name: "stray"}

	f.scene.Main = f.bolt
	f.scene.Meshes = []*mesh{f.box}
	f.scene.External = f.stray
	return f
}

func (f *sceneFixture) save(t *testing.T, opts ...Option) ([]byte, *SaveResult) {
	t.Helper()
	var buf bytes.Buffer
	opts = append([]Option{WithRegistry(f.reg)}, opts...)
	res, err := SaveFile(context.Background(), &buf, []rtti.Object{f.scene}, opts...)
	require.NoError(t, err)
	return buf.Bytes(), res
}
