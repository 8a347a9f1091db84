// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/wall_follower/internal/config"
	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/robot"
)

// TelemetryMessage is published on TOPIC_TELEMETRY for every sensor frame.
type TelemetryMessage struct {
	Distances []int   `json:"distances"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Theta     float64 `json:"theta"`
}

// bridge mirrors the robot state to MQTT and accepts target speeds from it.
type bridge struct {
	client  mqtt.Client
	publish func(topic string, payload []byte)
	cfg     *config.Config
}

func connectBridge(cfg *config.Config, state *robot.State) (*bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDFollower).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	b := &bridge{
		client: client,
		cfg:    cfg,
		publish: func(topic string, payload []byte) {
			client.Publish(topic, 0, false, payload)
		},
	}

	token := client.Subscribe(cfg.TopicTargetSpeed, 0, func(_ mqtt.Client, msg mqtt.Message) {
		v, err := applyTargetSpeed(state, msg.Payload())
		if err != nil {
			log.Printf("mqtt: %v", err)
			return
		}
		log.Printf("mqtt: target speed set to %.1f cm/s", v)
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return nil, token.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicTargetSpeed)

	return b, nil
}

func (b *bridge) publishFrame(f protocol.SensorFrame) {
	payload, err := telemetryPayload(f)
	if err != nil {
		log.Printf("mqtt: json marshal error: %v", err)
		return
	}
	b.publish(b.cfg.TopicTelemetry, payload)
}

func (b *bridge) publishStatus(st control.Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Printf("mqtt: json marshal error: %v", err)
		return
	}
	b.publish(b.cfg.TopicStatus, payload)
}

func (b *bridge) close() {
	b.client.Disconnect(250)
}

func telemetryPayload(f protocol.SensorFrame) ([]byte, error) {
	return json.Marshal(TelemetryMessage{
		Distances: f.Distances,
		X:         f.Pose.X,
		Y:         f.Pose.Y,
		Theta:     f.Pose.Theta,
	})
}

// applyTargetSpeed accepts either a bare number or {"speed": n}.
func applyTargetSpeed(state *robot.State, payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		var req speedRequest
		if jerr := json.Unmarshal([]byte(text), &req); jerr != nil {
			return 0, fmt.Errorf("invalid target speed %q", text)
		}
		v = req.Speed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid target speed %q", text)
	}
	return state.SetTargetSpeed(v), nil
}
