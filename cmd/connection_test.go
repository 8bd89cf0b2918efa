// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSensorBridge starts a WebSocket server that answers every read command
// with a concentration response for ppm
func newSensorBridge(t *testing.T, ppm uint16) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	readCmd := mhz19.NewReadCO2Command()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		// Noise the client must ignore
		c.WriteMessage(websocket.TextMessage, []byte("hello"))

		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage || !bytes.Equal(data, readCmd.Bytes()) {
				continue
			}
			resp := mhz19.NewConcentrationResponse(ppm, 24, 0)
			// Split the frame to exercise reassembly
			c.WriteMessage(websocket.BinaryMessage, resp[:4])
			c.WriteMessage(websocket.BinaryMessage, resp[4:])
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURLOf(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnectionSensorExchange(t *testing.T) {
	srv := newSensorBridge(t, 656)
	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	require.NoError(t, err)

	sensor := mhz19.NewSensor(mhz19.WithTransport(conn), mhz19.WithReadTimeout(2*time.Second))
	defer sensor.Close()

	for i := 0; i < 3; i++ {
		reading, err := sensor.ReadCO2()
		require.NoError(t, err)
		assert.Equal(t, uint16(656), reading.PPM)
		assert.Equal(t, 24, reading.Temperature)
	}
}

func TestWebSocketConnectionReadTimeout(t *testing.T) {
	srv := newSensorBridge(t, 400)
	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 9)
	start := time.Now()
	n, err := conn.ReadTimeout(buf, 50*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The connection survives a timeout
	_, err = conn.Write(mhz19.NewReadCO2Command().Bytes())
	require.NoError(t, err)
	n, err = conn.ReadTimeout(buf, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWebSocketConnectionFlush(t *testing.T) {
	srv := newSensorBridge(t, 400)
	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(mhz19.NewReadCO2Command().Bytes())
	require.NoError(t, err)

	// Take only part of the answer, then drop the rest
	buf := make([]byte, 2)
	n, err := conn.ReadTimeout(buf, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, conn.Flush())
	n, err = conn.ReadTimeout(buf, 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebSocketConnectionClosedByServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadTimeout(make([]byte, 9), 2*time.Second)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
}

func TestOpenWebSocketConnectionBadScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://localhost/", "", "", false)
	assert.Error(t, err)
}

func TestGetPasswordFromEnv(t *testing.T) {
	t.Setenv(envWiFiPassword, "hunter2")
	pw, err := GetPassword(envWiFiPassword, "Password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}

func TestConnectionOpenerRequiresTarget(t *testing.T) {
	o := &connectionOpener{}
	_, err := o.OpenUART(0, 0, mhz19.BaudRate)
	assert.Error(t, err)
}
