// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/app"
	"github.com/JakeFAU/crawlstore/internal/config"
	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/pool"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/store"
	"github.com/JakeFAU/crawlstore/internal/store/memory"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

// MockStoreClient mocks the store.Client interface.
type MockStoreClient struct {
	mock.Mock
}

// OpenTable satisfies the store.Client interface for the mock.
func (m *MockStoreClient) OpenTable(ctx context.Context, name string) (store.Table, error) {
	args := m.Called(ctx, name)
	tbl, _ := args.Get(0).(store.Table)
	return tbl, args.Error(1)
}

// Close satisfies the store.Client interface for the mock.
func (m *MockStoreClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockCloser mocks the publisher's Close.
type MockCloser struct {
	mock.Mock
}

// Close satisfies io.Closer for the mock.
func (m *MockCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewApp_MemoryDriverProcessesRecords(t *testing.T) {
	t.Parallel()

	a, err := app.NewApp(context.Background(), defaultConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.Nil(t, a.Publisher)
	require.NoError(t, a.Ready(context.Background()))

	res := a.GetProcessor().Process(context.Background(), &crawl.Record{
		URL:         "http://a.com/x",
		FetchStatus: 200,
		Content:     []byte("hello"),
	})
	require.Equal(t, processor.OutcomeWritten, res.Outcome)
	require.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", res.Write.ContentKey)

	mem, ok := a.Store.(*memory.Client)
	require.True(t, ok)
	require.Equal(t, 1, mem.RowCount("url"))
	require.Equal(t, 1, a.GetPool().NumIdle())
}

func TestNewApp_BoltDriver(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Store.Driver = config.DriverBolt
	cfg.Store.Bolt.Path = filepath.Join(t.TempDir(), "crawl.bolt")

	a, err := app.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	res := a.GetProcessor().Process(context.Background(), &crawl.Record{
		URL:         "http://b.com/y",
		FetchStatus: 200,
		Content:     []byte("hello"),
	})
	require.Equal(t, processor.OutcomeWritten, res.Outcome)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := app.OpenStore(context.Background(), config.StoreConfig{Driver: "cassandra"})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewApp_FailsFastOnStoreError(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Store.Driver = config.DriverLevelDB
	cfg.Store.LevelDB.Path = ""

	_, err := app.NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init store")
}

func TestApp_Close(t *testing.T) {
	t.Parallel()

	storeMock := new(MockStoreClient)
	pubMock := new(MockCloser)

	storeMock.On("Close").Return(nil).Once()
	pubMock.On("Close").Return(nil).Once()

	a := &app.App{
		Logger:    zap.NewNop(),
		Store:     storeMock,
		Publisher: pubMock,
	}

	require.NoError(t, a.Close())

	storeMock.AssertExpectations(t)
	pubMock.AssertExpectations(t)
}

func TestApp_Close_WithErrors(t *testing.T) {
	t.Parallel()

	storeMock := new(MockStoreClient)
	pubMock := new(MockCloser)

	storeMock.On("Close").Return(errors.New("store error")).Once()
	pubMock.On("Close").Return(errors.New("publisher error")).Once()

	a := &app.App{
		Logger:    zap.NewNop(),
		Store:     storeMock,
		Publisher: pubMock,
	}

	err := a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store error")
	assert.Contains(t, err.Error(), "publisher error")

	storeMock.AssertExpectations(t)
	pubMock.AssertExpectations(t)
}

func TestApp_ReadyReportsStoreFailure(t *testing.T) {
	t.Parallel()

	storeMock := new(MockStoreClient)
	storeMock.On("OpenTable", mock.Anything, "url").Return(nil, errors.New("down")).Once()

	a := &app.App{
		Config: config.Config{Schema: defaultConfig(t).Schema},
		Store:  storeMock,
	}
	require.Error(t, a.Ready(context.Background()))

	a.Pool = mustPool(t)
	err := a.Ready(context.Background())
	require.ErrorContains(t, err, "store not ready")
	storeMock.AssertExpectations(t)
}

func mustPool(t *testing.T) *pool.Pool[*writer.Writer] {
	t.Helper()
	p, err := pool.New(pool.DefaultConfig(), func(context.Context, int) (*writer.Writer, error) {
		return nil, errors.New("unused")
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}
