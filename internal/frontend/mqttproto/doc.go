// Package mqttproto is the MQTT front-end protocol. It forwards commands
// to protocol bridges over the broker and completes each command when the
// bridge acknowledges it.
//
//	Issue ──► graylogic/command/mqtt/{endpoint}   CommandMessage
//	          graylogic/ack/mqtt/{endpoint}    ◄── AckMessage
//
// An ack with status "accepted" completes the command with SUCCESS;
// "failed" and "timeout" complete it with FAILURE and the bridge's error
// message; "queued" leaves it pending. Commands with no ack after the
// pending TTL complete with FAILURE.
//
// Handlers report UP while the broker connection is up and DOWN otherwise.
//
// Endpoint keys (under the protocolConfig prefix):
//
//	protocolConfig.topic_prefix     topic root, default "graylogic"
//	protocolConfig.qos              0, 1 or 2, default 1
//	protocolConfig.pending_ttl_ms   ack deadline, default 30000
package mqttproto
