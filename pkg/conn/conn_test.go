package conn

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

type fakeSession struct {
	host   string
	closed atomic.Bool
}

func (f *fakeSession) Exec(context.Context, string, map[string]string, bool) (string, string, int, error) {
	return "", "", 0, nil
}
func (f *fakeSession) Put(context.Context, io.Reader, string, os.FileMode) error { return nil }
func (f *fakeSession) Get(context.Context, string) (io.ReadCloser, error)        { return nil, os.ErrNotExist }
func (f *fakeSession) Family() string                                            { return "posix" }
func (f *fakeSession) Close() error                                              { f.closed.Store(true); return nil }

func TestPoolReusesSessionPerHost(t *testing.T) {
	var dials atomic.Int32
	pool := NewPool(func(ctx context.Context, host string, o Options) (Session, error) {
		dials.Add(1)
		return &fakeSession{host: host}, nil
	})

	ctx := context.Background()
	first, err := pool.Get(ctx, "web1", Options{})
	require.NoError(t, err)
	second, err := pool.Get(ctx, "web1", Options{})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), dials.Load())

	_, err = pool.Get(ctx, "web2", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())
}

func TestPoolConcurrentGet(t *testing.T) {
	var dials atomic.Int32
	pool := NewPool(func(ctx context.Context, host string, o Options) (Session, error) {
		dials.Add(1)
		return &fakeSession{host: host}, nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Get(context.Background(), "web1", Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	// Racing dials may happen, but only one session survives in the pool.
	s, err := pool.Get(context.Background(), "web1", Options{})
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestPoolCloseAll(t *testing.T) {
	sessions := map[string]*fakeSession{}
	pool := NewPool(func(ctx context.Context, host string, o Options) (Session, error) {
		s := &fakeSession{host: host}
		sessions[host] = s
		return s, nil
	})
	ctx := context.Background()
	_, err := pool.Get(ctx, "a", Options{})
	require.NoError(t, err)
	_, err = pool.Get(ctx, "b", Options{})
	require.NoError(t, err)

	pool.CloseAll()
	assert.True(t, sessions["a"].closed.Load())
	assert.True(t, sessions["b"].closed.Load())

	// A fresh Get after CloseAll dials again.
	_, err = pool.Get(ctx, "a", Options{})
	require.NoError(t, err)
}

func TestDialUnknownTransport(t *testing.T) {
	_, err := Dial(context.Background(), "web1", Options{Transport: "carrier-pigeon"})
	var te *errs.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "web1", te.Host)
}
