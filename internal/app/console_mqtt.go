package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/wall_follower/internal/config"
	"github.com/relabs-tech/wall_follower/internal/control"
)

// RunConsoleMQTT prints the telemetry and controller status published by a
// running follower until ctx is cancelled.
func RunConsoleMQTT(ctx context.Context, out io.Writer) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	telemetryToken := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		line, err := formatTelemetry(msg.Payload())
		if err != nil {
			log.Printf("console: telemetry unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, line)
	})
	telemetryToken.Wait()
	if telemetryToken.Error() != nil {
		return telemetryToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		line, err := formatStatus(msg.Payload())
		if err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, line)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

func formatTelemetry(payload []byte) (string, error) {
	var m TelemetryMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", err
	}
	return fmt.Sprintf("[SONAR] %v  x=%5d y=%5d theta=%6.3f", m.Distances, m.X, m.Y, m.Theta), nil
}

func formatStatus(payload []byte) (string, error) {
	var st control.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return "", err
	}
	if st.Mode != control.Following {
		return fmt.Sprintf("[CTRL] %s", st.Mode), nil
	}
	fallback := ""
	if st.Fallback {
		fallback = " (previous line)"
	}
	return fmt.Sprintf("[CTRL] %s  y=%.4fx%+.2f%s  err=%6.2f rate=%6.2f  v=%6.1f w=%6.3f",
		st.Mode, st.Line.Slope, st.Line.Intercept, fallback,
		st.Error, st.Rate, st.Command.Translational, st.Command.Angular), nil
}
