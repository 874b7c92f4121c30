package fanout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanoutPreservesOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBus[int]()

	var (
		mu   sync.Mutex
		got1 []int
		got2 []int
	)

	b.Subscribe(func(v int) {
		mu.Lock()
		got1 = append(got1, v)
		mu.Unlock()
	})
	b.Subscribe(func(v int) {
		mu.Lock()
		got2 = append(got2, v)
		mu.Unlock()
	})

	want := make([]int, 1000)
	for i := range want {
		want[i] = i
		b.Publish(i)
	}

	b.Close()

	require.Equal(t, want, got1)
	require.Equal(t, want, got2)
}

func TestFanoutPublishAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	b := NewBus[string]()

	var got []string

	b.Subscribe(func(v string) { got = append(got, v) })
	b.Publish("a")
	b.Close()
	b.Publish("b")

	require.Equal(t, []string{"a"}, got)
}

func TestFanoutSubscribeAfterClose(t *testing.T) {
	t.Parallel()

	b := NewBus[int]()
	b.Close()

	b.Subscribe(func(int) { t.Fatal("must not be called") })
	b.Publish(1)
}
