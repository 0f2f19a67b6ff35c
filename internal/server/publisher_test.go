package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/goradar/internal/nav"
)

func TestPublisher_Throttle(t *testing.T) {
	p := &Publisher{minGap: time.Hour}
	fixState := nav.State{LastFix: &nav.Fix{Accuracy: 5}}

	assert.True(t, p.due(fixState), "first update always goes out")
	assert.False(t, p.due(fixState), "fix updates are throttled")
	assert.True(t, p.due(nav.State{SessionID: "new"}), "destination changes are not")
}

func TestPublisher_TrailingUpdate(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []nav.State
	)
	p := &Publisher{minGap: 30 * time.Millisecond}
	p.send = func(st nav.State) {
		mu.Lock()
		sent = append(sent, st)
		mu.Unlock()
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(sent)
	}

	p.Publish(nav.State{SessionID: "a", LastFix: &nav.Fix{Accuracy: 1}})
	p.Publish(nav.State{SessionID: "a", LastFix: &nav.Fix{Accuracy: 2}})
	p.Publish(nav.State{SessionID: "a", LastFix: &nav.Fix{Accuracy: 3}})
	require.Equal(t, 1, count(), "burst is held back")

	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 3.0, sent[1].LastFix.Accuracy, "latest held update goes out")
	mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, count(), "nothing pending, nothing extra")
}

func TestNewPublisher_Disabled(t *testing.T) {
	p, err := NewPublisher(MQTTConfig{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewPublisher(MQTTConfig{StateTopic: "goradar/state"})
	require.NoError(t, err)
	assert.Nil(t, p)
}
