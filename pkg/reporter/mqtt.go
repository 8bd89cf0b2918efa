// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package reporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopic is where MQTTDialer publishes when Topic is empty
const DefaultTopic = "ndirstat/co2"

// clientIDAppKey salts the machine ID so the broker never sees the raw value
const clientIDAppKey = "ndirstat"

// MQTTDialer publishes each packet to a broker topic
type MQTTDialer struct {
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
}

// ClientID returns a stable per-host MQTT client identifier
func ClientID() string {
	id, err := machineid.ProtectedID(clientIDAppKey)
	if err != nil || id == "" {
		return fmt.Sprintf("ndirstat-%d", time.Now().UnixNano())
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return "ndirstat-" + id
}

// Dial implements Dialer
func (d *MQTTDialer) Dial(ctx context.Context, host string, port uint16) (Conn, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + net.JoinHostPort(host, strconv.Itoa(int(port)))).
		SetAutoReconnect(true).
		SetCleanSession(true)

	clientID := d.ClientID
	if clientID == "" {
		clientID = ClientID()
	}
	opts.SetClientID(clientID)
	if d.Username != "" {
		opts.SetUsername(d.Username)
		opts.SetPassword(d.Password)
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect failed: %w", err)
	}

	topic := d.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &mqttConn{client: client, topic: topic, qos: d.QoS, retain: d.Retain}, nil
}

type mqttConn struct {
	client paho.Client
	topic  string
	qos    byte
	retain bool
}

var errMQTTDisconnected = errors.New("MQTT client disconnected")

func (m *mqttConn) Send(msg []byte) error {
	if !m.client.IsConnected() {
		return errMQTTDisconnected
	}
	token := m.client.Publish(m.topic, m.qos, m.retain, msg)
	token.Wait()
	return token.Error()
}

func (m *mqttConn) Close() error {
	m.client.Disconnect(250)
	return nil
}
