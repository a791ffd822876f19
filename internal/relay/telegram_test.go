package relay

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

func bootstrap(t *testing.T, baseURL string) *Telegram {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	tg, err := New(logger.Sugar(), Config{
		Token:      "test-token",
		ChatID:     "42",
		BaseURL:    baseURL,
		RatePerSec: 100,
	})
	require.NoError(t, err)

	return tg
}

func TestNewMissingCredentials(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	_, err = New(logger.Sugar(), Config{})
	require.Error(t, err)
}

func TestDeliverWireFormat(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := ioutil.ReadAll(r.Body)
		require.NoError(t, err)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := bootstrap(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tg.Run(ctx)

	tg.Notify("hi")

	select {
	case body := <-received:
		require.Equal(t, "42", fastjson.GetString(body, "chat_id"))
		require.Equal(t, "hi", fastjson.GetString(body, "text"))
		require.Equal(t, "HTML", fastjson.GetString(body, "parse_mode"))
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	var calls int
	received := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		received <- struct{}{}
	}))
	defer srv.Close()

	tg := bootstrap(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tg.Run(ctx)

	// the failed delivery is not retried and does not stop the worker
	tg.Notify("first")
	tg.Notify("second")

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("delivery stalled after a sink failure")
		}
	}
	require.Equal(t, 2, calls)
}

func TestNotifyNeverBlocks(t *testing.T) {
	// no worker running: the queue fills up and extra notifications drop
	tg := bootstrap(t, "http://127.0.0.1:0")

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			tg.Notify("text")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}
