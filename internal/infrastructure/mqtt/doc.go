// Package mqtt provides the broker connection used by the MQTT front-end
// protocol and the activity publisher.
//
// The arbiter never talks to devices directly over MQTT. It publishes a
// command request on a per-endpoint topic and waits for the bridge that
// owns the endpoint to publish an acknowledgement:
//
//	arbiter --graylogic/command/{protocol}/{endpoint}--> bridge
//	arbiter <--graylogic/ack/{protocol}/{endpoint}------ bridge
//
// # Connection Handling
//
//   - Auto-reconnect with backoff from config (reconnect.initial_delay..max_delay)
//   - Subscriptions are restored after every reconnect
//   - A retained Last Will marks the arbiter offline on graylogic/system/status
//   - OnConnectionChange lets front-end handlers report UP/DOWN
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	remove := client.OnConnectionChange(func(up bool) { ... })
//	defer remove()
package mqtt
