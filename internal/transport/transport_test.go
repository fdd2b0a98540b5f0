// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridge is a minimal serial bridge: it sends a text banner, then answers
// every binary message with a scripted pump reply split over two messages
func bridge(t *testing.T, wantAuth bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "operator" || pass != "secret" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("bridge ready"))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "1RC\r" {
				conn.WriteMessage(websocket.BinaryMessage, []byte("1,1"))
				conn.WriteMessage(websocket.BinaryMessage, []byte(",0\r"))
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_ChunksBinaryMessages(t *testing.T) {
	srv := bridge(t, false)
	defer srv.Close()

	conn, err := OpenWebSocket(context.Background(), wsURL(srv), "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("1RC\r"))
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 2)
	for !strings.HasSuffix(string(got), "\r") {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "1,1,0\r", string(got))
}

func TestWebSocket_BasicAuth(t *testing.T) {
	srv := bridge(t, true)
	defer srv.Close()

	_, err := OpenWebSocket(context.Background(), wsURL(srv), "operator", "wrong", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")

	conn, err := OpenWebSocket(context.Background(), wsURL(srv), "operator", "secret", false)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocket_ReadAfterClose(t *testing.T) {
	srv := bridge(t, false)
	defer srv.Close()

	conn, err := OpenWebSocket(context.Background(), wsURL(srv), "", "", false)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Read(make([]byte, 8))
	require.Error(t, err)
	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.EqualError(t, err, "either --port or --url must be specified")

	_, err = Open(context.Background(), Config{URL: "http://example.com"})
	assert.ErrorContains(t, err, "unsupported URL scheme: http")
}

func TestConfig_Describe(t *testing.T) {
	assert.Equal(t, "Serial: /dev/ttyUSB0 @ 9600 baud", Config{Port: "/dev/ttyUSB0", Baud: 9600}.Describe())
	assert.Equal(t, "WebSocket: ws://bridge/pump", Config{URL: "ws://bridge/pump", Port: "/dev/ttyUSB0"}.Describe())
}

func TestGetPassword_Env(t *testing.T) {
	t.Setenv(PasswordEnv, "hunter2")
	pw, err := GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}
