// Package mqtt provides the bridge's MQTT client and an optional
// in-process broker.
//
// The client wraps paho.mqtt.golang with automatic reconnection,
// subscription restoration and a retained "offline" will on the health
// topic. Topics builds the topic hierarchy under the configured prefix.
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1, handleCommand)
//
// Broker runs mochi-mqtt inside the process for single-machine setups:
//
//	broker, err := mqtt.StartBroker(cfg.MQTT.Embedded.Address, logger.Logger)
package mqtt
