package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinicsync-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	gotos   []string
	filled  map[string]string
	clicked []string
	waited  []string
	closed  int

	waitErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{filled: map[string]string{}}
}

func (f *fakeDriver) Goto(url string, timeout time.Duration) error {
	f.gotos = append(f.gotos, url)
	return nil
}

func (f *fakeDriver) WaitVisible(selector string, timeout time.Duration) error {
	f.waited = append(f.waited, selector)
	return f.waitErr
}

func (f *fakeDriver) Fill(selector, value string) error {
	f.filled[selector] = value
	return nil
}

func (f *fakeDriver) TypeSlowly(selector, value string, keyDelay time.Duration) error {
	f.filled[selector] = value
	return nil
}

func (f *fakeDriver) Click(selector string, timeout time.Duration) error {
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeDriver) Eval(script string) (any, error) { return nil, nil }
func (f *fakeDriver) Content() (string, error)        { return "", nil }
func (f *fakeDriver) Close() error {
	f.closed++
	return nil
}

func withStartDriver(t *testing.T, fn func(Options) (Driver, error)) {
	prev := startDriver
	startDriver = fn
	t.Cleanup(func() { startDriver = prev })
}

func TestOpenRetriesStartup(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/browser")
	defer cleanup()

	drv := newFakeDriver()
	attempts := 0
	withStartDriver(t, func(Options) (Driver, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("chromium crashed")
		}
		return drv, nil
	})

	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	s.Close()
}

func TestOpenGivesUpAfterThreeAttempts(t *testing.T) {
	attempts := 0
	withStartDriver(t, func(Options) (Driver, error) {
		attempts++
		return nil, errors.New("no display")
	})

	_, err := Open(context.Background(), Options{})
	require.ErrorIs(t, err, ErrStartupFailed)
	require.Equal(t, 3, attempts)
}

func TestLoginIsIdempotent(t *testing.T) {
	drv := newFakeDriver()
	withStartDriver(t, func(Options) (Driver, error) { return drv, nil })

	s, err := Open(context.Background(), Options{
		LoginURL: "https://legacy.example/Login.aspx",
		Username: "admin",
		Password: "secret",
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Login(context.Background()))
	require.True(t, s.IsLoggedIn())
	require.Len(t, drv.gotos, 1)

	// second login must not touch the browser again
	require.NoError(t, s.Login(context.Background()))
	require.Len(t, drv.gotos, 1)
	require.Len(t, drv.clicked, 1)
}

func TestLoginFailsWithoutMarker(t *testing.T) {
	drv := newFakeDriver()
	drv.waitErr = errors.New("timeout")
	withStartDriver(t, func(Options) (Driver, error) { return drv, nil })

	s, err := Open(context.Background(), Options{LoginURL: "https://legacy.example/Login.aspx"})
	require.NoError(t, err)
	defer s.Close()

	err = s.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.False(t, s.IsLoggedIn())
}

func TestCloseIsAlwaysSafe(t *testing.T) {
	drv := newFakeDriver()
	withStartDriver(t, func(Options) (Driver, error) { return drv, nil })

	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)

	s.Close()
	s.Close()
	require.Equal(t, 1, drv.closed)
}
