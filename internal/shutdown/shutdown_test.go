package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownRunsHooksLIFO(t *testing.T) {
	m := New(time.Second, nil)

	var order []string
	m.Register("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})
	m.Register("third", CloseResource(closerFunc(func() error {
		order = append(order, "third")
		return nil
	})))

	err := m.Shutdown()
	assert.EqualError(t, err, "second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	assert.NoError(t, m.Shutdown(), "hooks run once")
}

func TestShutdownHookSeesDeadline(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	m.Register("deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, m.Shutdown())
}
