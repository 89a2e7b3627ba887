package native

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/stratum/pkg/compression"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "container.strm")
}

func TestClassDescriptor(t *testing.T) {
	cls := Class()
	assert.Equal(t, Name, cls.Name)
	assert.Equal(t, Value, cls.Value)
	assert.Equal(t, core.ClassVersion, cls.Version)
	assert.True(t, cls.Capabilities.Has(core.CapPersistent|core.CapTokens))
	assert.Nil(t, cls.Request, "all work completes synchronously")
}

func TestContainerPersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)

	raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)

	grp, err := cls.Group.Create(ctx, raw, core.Self(), "data", nil)
	require.NoError(t, err)
	ds, err := cls.Dataset.Create(ctx, grp, core.Self(), "values", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{10, 20, 30}}, nil))

	attr, err := cls.Attribute.Create(ctx, ds, core.Self(), "units", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Attribute.Write(ctx, attr, &core.IOArgs{Value: "kg"}, nil))

	id, err := cls.Blob.Put(ctx, raw, []byte("blob payload"))
	require.NoError(t, err)

	require.NoError(t, cls.File.Close(ctx, raw, nil))

	reopened, err := cls.File.Open(ctx, path, core.FlagReadOnly, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, cls.File.Close(ctx, reopened, nil)) }()

	ds, err = cls.Dataset.Open(ctx, reopened, core.ByName("data"), "values", nil)
	require.NoError(t, err)
	buf := make([]byte, 3)
	require.NoError(t, cls.Dataset.Read(ctx, ds, &core.IOArgs{Buf: buf}, nil))
	assert.Equal(t, []byte{10, 20, 30}, buf)

	attr, err = cls.Attribute.Open(ctx, ds, core.Self(), "units", nil)
	require.NoError(t, err)
	var units interface{}
	require.NoError(t, cls.Attribute.Read(ctx, attr, &core.IOArgs{Value: &units}, nil))
	assert.Equal(t, "kg", units)

	blob, err := cls.Blob.Get(ctx, reopened, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob payload"), blob)
}

func TestReadOnlyContainerRejectsWrites(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)

	raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	ds, err := cls.Dataset.Create(ctx, raw, core.Self(), "d", nil)
	require.NoError(t, err)
	require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{1}}, nil))
	require.NoError(t, cls.File.Close(ctx, raw, nil))

	reopened, err := cls.File.Open(ctx, path, core.FlagReadOnly, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, cls.File.Close(ctx, reopened, nil)) }()

	_, err = cls.Group.Create(ctx, reopened, core.Self(), "g", nil)
	require.Error(t, err)

	ds, err = cls.Dataset.Open(ctx, reopened, core.Self(), "d", nil)
	require.NoError(t, err)
	err = cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte{2}}, nil)
	require.Error(t, err)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a container at all"), 0o644))

	_, err := cls.File.Open(ctx, path, core.FlagReadOnly, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a native container")
}

func TestOpenRejectsFutureFormatVersion(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)

	raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cls.File.Close(ctx, raw, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(magic)] = formatVersion + 1
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = cls.File.Open(ctx, path, core.FlagReadOnly, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format version")
}

func TestIsAccessibleProbe(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)

	check := func() bool {
		out := false
		_, err := cls.File.Specific(ctx, nil, &core.OpArgs{
			Op:  core.OpFileIsAccessible,
			In:  &core.AccessibleArgs{Name: path},
			Out: &out,
		}, nil)
		require.NoError(t, err)
		return out
	}
	assert.False(t, check(), "nothing on disk yet")

	raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cls.File.Close(ctx, raw, nil))
	assert.True(t, check())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	assert.False(t, check(), "a foreign file is not an accessible container")
}

func TestCompressionAlgorithmRoundTrips(t *testing.T) {
	for _, algo := range []compression.Algorithm{
		compression.None, compression.Gzip, compression.Snappy,
		compression.LZ4, compression.Zstd,
	} {
		t.Run(string(algo), func(t *testing.T) {
			ctx := context.Background()
			cls := Class()
			path := containerPath(t)
			info := &Info{Compression: algo, Level: compression.Default}

			raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, info, nil)
			require.NoError(t, err)
			ds, err := cls.Dataset.Create(ctx, raw, core.Self(), "d", nil)
			require.NoError(t, err)
			require.NoError(t, cls.Dataset.Write(ctx, ds, &core.IOArgs{Buf: []byte("payload payload payload")}, nil))
			require.NoError(t, cls.File.Close(ctx, raw, nil))

			// the algorithm byte in the header drives decode, not the caller's info
			reopened, err := cls.File.Open(ctx, path, core.FlagReadOnly, nil, nil)
			require.NoError(t, err)
			ds, err = cls.Dataset.Open(ctx, reopened, core.Self(), "d", nil)
			require.NoError(t, err)
			buf := make([]byte, len("payload payload payload"))
			require.NoError(t, cls.Dataset.Read(ctx, ds, &core.IOArgs{Buf: buf}, nil))
			assert.Equal(t, "payload payload payload", string(buf))
			require.NoError(t, cls.File.Close(ctx, reopened, nil))
		})
	}
}

func TestInfoSerializeRoundTrip(t *testing.T) {
	cls := Class()
	info := &Info{Compression: compression.Zstd, Level: compression.Best}

	data, err := cls.Info.Serialize(info)
	require.NoError(t, err)
	back, err := cls.Info.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, info, back)

	cmp, err := cls.Info.Compare(info, back)
	require.NoError(t, err)
	assert.Zero(t, cmp)

	clone, err := cls.Info.Copy(info)
	require.NoError(t, err)
	assert.Equal(t, info, clone)
	assert.NotSame(t, info, clone)
}

func TestTokenTable(t *testing.T) {
	cls := Class()
	require.NotNil(t, cls.Token)

	cmp, err := cls.Token.Compare(core.Token("/a"), core.Token("/b"))
	require.NoError(t, err)
	assert.Negative(t, cmp)

	cmp, err = cls.Token.Compare(nil, core.Token("/a"))
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	s, err := cls.Token.ToString(nil, core.Token("/data/values"))
	require.NoError(t, err)
	assert.Equal(t, "/data/values", s)

	tok, err := cls.Token.FromString(nil, "/data/values")
	require.NoError(t, err)
	assert.Equal(t, core.Token("/data/values"), tok)

	_, err = cls.Token.FromString(nil, "relative/path")
	require.Error(t, err)
}

func TestFileNameGet(t *testing.T) {
	ctx := context.Background()
	cls := Class()
	path := containerPath(t)

	raw, err := cls.File.Create(ctx, path, core.FlagReadWrite|core.FlagTruncate, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, cls.File.Close(ctx, raw, nil)) }()

	var name string
	require.NoError(t, cls.File.Get(ctx, raw, &core.OpArgs{Op: "file.name", Out: &name}, nil))
	assert.Equal(t, path, name)
}
