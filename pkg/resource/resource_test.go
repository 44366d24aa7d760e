package resource

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type SaveLoadSuite struct {
	suite.Suite
	protected bool
	fixture   *sceneFixture
}

func (s *SaveLoadSuite) SetupTest() {
	s.fixture = newSceneFixture(s.T())
}

func (s *SaveLoadSuite) TestRoundTrip() {
	f := s.fixture
	data, saved := f.save(s.T(), WithProtected(s.protected))
	s.Equal(3, saved.Objects)
	s.Equal(1, saved.Buffers)
	s.Equal(2, saved.Imports)
	s.Equal(1, saved.LostPointers)
	s.EqualValues(len(data), saved.Bytes)

	for _, obj := range []*mesh{f.box, f.bolt, f.stray} {
		s.Zero(obj.RefCount())
	}

	res, err := LoadFile(context.Background(), data, WithRegistry(f.reg))
	s.Require().NoError(err)
	s.Equal(filetables.CurrentVersion.String(), res.Version)
	s.Require().Len(res.Roots, 1)
	s.Len(res.Objects, 4)

	sc := res.Roots[0].(*scene)
	s.NotSame(f.scene, sc)
	s.Equal("level", sc.Title)
	s.True(sc.postLoaded)
	s.Nil(sc.External)
	s.Require().Len(sc.Meshes, 1)

	box := sc.Meshes[0]
	s.Equal("box", box.Name)
	s.Equal([]float32{1, 2, 3}, box.Vertices)
	s.Equal(rtti.Object(sc), rtti.ParentOf(box))
	s.Equal("/materials/wood.mat", box.Material.Path)
	s.Equal(rtti.Type(f.material), box.Material.Class)
	s.Nil(box.Material.Loaded)
	s.Equal("/textures/wood.tex", box.Texture.Path)
	s.Equal(rtti.Type(f.texture), box.Texture.Class)

	s.Require().NotNil(sc.Main)
	s.Equal("bolt", sc.Main.Name)
	s.Equal(rtti.Object(box), rtti.ParentOf(sc.Main))
	s.Require().NotNil(sc.Main.Blob)
	s.Equal([]byte("vertex data"), sc.Main.Blob.Data())
}

func (s *SaveLoadSuite) TestParentsFirst() {
	data, _ := s.fixture.save(s.T(), WithProtected(s.protected))
	file, err := filetables.Open(data)
	s.Require().NoError(err)

	tables := file.Tables
	s.Equal(s.protected, tables.Protected())
	s.Require().Len(tables.Exports, 4)
	s.Equal("Scene", tables.TypeName(tables.Exports[1].Class))
	s.Equal(uint32(0), tables.Exports[1].Parent)
	s.Equal(uint32(1), tables.Exports[2].Parent)
	s.Equal(uint32(2), tables.Exports[3].Parent)
	s.Equal([]int{1}, tables.Roots())
}

func (s *SaveLoadSuite) TestDeterministic() {
	first, _ := s.fixture.save(s.T(), WithProtected(s.protected))
	second, _ := s.fixture.save(s.T(), WithProtected(s.protected), WithWorkers(1))
	s.Equal(first, second)
}

func (s *SaveLoadSuite) TestLoadIntoRoot() {
	f := s.fixture
	data, _ := f.save(s.T(), WithProtected(s.protected))

	target := &scene{Title: "old"}
	res, err := LoadFile(context.Background(), data, WithRegistry(f.reg), WithRoot(target))
	s.Require().NoError(err)
	s.Require().Len(res.Roots, 1)
	s.Same(target, res.Roots[0])
	s.Equal("level", target.Title)
	s.Len(target.Meshes, 1)
}

func TestSaveLoadUnprotected(t *testing.T) {
	suite.Run(t, &SaveLoadSuite{protected: false})
}

func TestSaveLoadProtected(t *testing.T) {
	suite.Run(t, &SaveLoadSuite{protected: true})
}

func TestChecksumMismatch(t *testing.T) {
	f := newSceneFixture(t)
	data, _ := f.save(t, WithProtected(true))
	file, err := filetables.Open(data)
	require.NoError(t, err)

	e := file.Tables.Exports[2]
	corrupted := bytes.Clone(data)
	corrupted[file.HeaderSize+int(e.Offset+e.Size)-1] ^= 0xff

	_, err = LoadFile(context.Background(), corrupted, WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrChecksumMismatch)

	buf := file.Tables.Buffers[1]
	corrupted = bytes.Clone(data)
	corrupted[file.HeaderSize+int(buf.Offset)] ^= 0xff
	_, err = LoadFile(context.Background(), corrupted, WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrChecksumMismatch)
	_, err = LoadFile(context.Background(), corrupted, WithRegistry(f.reg), WithVerifyChecksum(false))
	assert.NoError(t, err)
}

func TestImporter(t *testing.T) {
	f := newSceneFixture(t)
	data, _ := f.save(t)

	var calls atomic.Int32
	var seen []string
	importer := ImporterFunc(func(ctx context.Context, path string, class rtti.Type) (rtti.Object, error) {
		calls.Inc()
		seen = append(seen, path)
		assert.Equal(t, rtti.Type(f.material), class)
		return f.reg.New("Material")
	})
	res, err := LoadFile(context.Background(), data, WithRegistry(f.reg), WithImporter(importer))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []string{"/materials/wood.mat"}, seen)

	box := res.Roots[0].(*scene).Meshes[0]
	require.NotNil(t, box.Material.Loaded)
	assert.Equal(t, "Material", box.Material.Loaded.Class().Name())
	require.Len(t, res.Imports, 3)
	assert.True(t, res.Imports[2].Async)
	assert.Nil(t, res.Imports[2].Loaded)
}

func TestImporterRetry(t *testing.T) {
	f := newSceneFixture(t)
	data, _ := f.save(t)

	var calls atomic.Int32
	importer := ImporterFunc(func(ctx context.Context, path string, class rtti.Type) (rtti.Object, error) {
		if calls.Inc() < 2 {
			return nil, merr.WrapErrImportFailed(path, class.Name(), errors.New("busy"))
		}
		return f.reg.New("Material")
	})
	res, err := LoadFile(context.Background(), data, WithRegistry(f.reg), WithImporter(importer))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.NotNil(t, res.Roots[0].(*scene).Meshes[0].Material.Loaded)
}

func TestImporterFailureIsNotFatal(t *testing.T) {
	f := newSceneFixture(t)
	data, _ := f.save(t)

	var calls atomic.Int32
	importer := ImporterFunc(func(ctx context.Context, path string, class rtti.Type) (rtti.Object, error) {
		calls.Inc()
		return nil, errors.New("no such file")
	})
	res, err := LoadFile(context.Background(), data, WithRegistry(f.reg), WithImporter(importer))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	box := res.Roots[0].(*scene).Meshes[0]
	assert.Equal(t, "/materials/wood.mat", box.Material.Path)
	assert.Nil(t, box.Material.Loaded)
}

func TestUnknownClassSkipsSubtree(t *testing.T) {
	ctx := context.Background()
	saveReg := newTestRegistry(t)
	_, err := saveReg.RegisterClass("Folder", (*folder)(nil))
	require.NoError(t, err)

	root := &folder{Label: "props"}
	item := &mesh{Name: "crate"}
	item.SetParent(root)
	root.Items = []*mesh{item}
	loose := &mesh{Name: "loose"}

	var buf bytes.Buffer
	_, err = SaveFile(ctx, &buf, []rtti.Object{root, loose}, WithRegistry(saveReg))
	require.NoError(t, err)

	res, err := LoadFile(ctx, buf.Bytes(), WithRegistry(newTestRegistry(t)))
	require.NoError(t, err)
	require.Len(t, res.Objects, 4)
	assert.Nil(t, res.Objects[1])
	require.Len(t, res.Roots, 1)
	assert.Equal(t, "loose", res.Roots[0].(*mesh).Name)
	for _, obj := range res.Objects {
		if m, ok := obj.(*mesh); ok {
			assert.NotEqual(t, "crate", m.Name)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)

	_, err := LoadFile(ctx, []byte("OPSF"), WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrTablesInvalid)

	var buf bytes.Buffer
	_, err = filetables.WriteHeader(&buf, filetables.New(0))
	require.NoError(t, err)
	_, err = LoadFile(ctx, buf.Bytes(), WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrNothingToLoad)

	data, _ := f.save(t)
	_, err = LoadFile(ctx, data, WithRegistry(f.reg), WithRoot(&mesh{}))
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestSaveErrors(t *testing.T) {
	f := newSceneFixture(t)
	var buf bytes.Buffer

	_, err := SaveFile(context.Background(), &buf, nil, WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SaveFile(ctx, &buf, []rtti.Object{f.scene}, WithRegistry(f.reg))
	assert.ErrorIs(t, err, merr.ErrSaveCanceled)
	assert.Zero(t, buf.Len())

	_, err = SaveFile(context.Background(), &buf, []rtti.Object{f.scene}, WithRegistry(f.reg), WithPageSize(16), WithMaxBytes(16))
	assert.ErrorIs(t, err, merr.ErrStreamCorrupted)
}

func TestSaveProgress(t *testing.T) {
	f := newSceneFixture(t)
	var (
		calls atomic.Int32
		last  atomic.Int32
	)
	f.save(t, WithWorkers(1), WithProgress(func(done, total int) {
		calls.Inc()
		last.Store(int32(done))
		assert.Equal(t, 3, total)
	}))
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 3, last.Load())

	var seen []int
	f.save(t, WithWorkers(4), WithProgress(func(done, _ int) {
		seen = append(seen, done)
	}))
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestLoadFileDependencies(t *testing.T) {
	f := newSceneFixture(t)
	data, _ := f.save(t, WithProtected(true))

	deps, err := LoadFileDependencies(context.Background(), data, WithRegistry(f.reg))
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, Dependency{Path: "/materials/wood.mat", ClassName: "Material", Class: f.material}, deps[0])
	assert.Equal(t, Dependency{Path: "/textures/wood.tex", ClassName: "Texture", Class: f.texture, Async: true}, deps[1])
	assert.Equal(t, "/materials/wood.mat(Material)", deps[0].String())
	assert.Equal(t, "/textures/wood.tex(Texture, async)", deps[1].String())
}

func TestExtractUsedResources(t *testing.T) {
	f := newSceneFixture(t)
	used, err := ExtractUsedResources(context.Background(), []rtti.Object{f.scene}, WithRegistry(f.reg))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"/materials/wood.mat": 1,
		"/textures/wood.tex":  1,
	}, used)
	assert.Zero(t, f.box.RefCount())
}

func TestCloneObject(t *testing.T) {
	f := newSceneFixture(t)
	clone, err := CloneObject(context.Background(), f.box, WithRegistry(f.reg))
	require.NoError(t, err)

	box := clone.(*mesh)
	assert.NotSame(t, f.box, box)
	assert.Nil(t, rtti.ParentOf(box))
	assert.Equal(t, f.box.Name, box.Name)
	assert.Equal(t, f.box.Vertices, box.Vertices)
	assert.Equal(t, f.box.Material.Path, box.Material.Path)

	_, err = CloneObject(context.Background(), nil)
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}
