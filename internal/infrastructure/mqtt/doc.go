// Package mqtt provides MQTT client connectivity for fanlink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Topic Scheme
//
//	fanlink/command/fan/{fan_id}  inbound control requests
//	fanlink/state/fan/{fan_id}    retained fan state
//	fanlink/ack/fan/{fan_id}      per-command acknowledgements
//	fanlink/health/fan            retained link/engine health
//	fanlink/system/status         daemon status (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllFanCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        // dispatch command
//	        return nil
//	    })
package mqtt
