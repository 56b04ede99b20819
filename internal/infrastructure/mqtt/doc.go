// Package mqtt provides the MQTT client used by the garage controller and
// the display simulator.
//
// The controller publishes the door state (retained) on garage/state and
// listens for remote commands on garage/control. A Last Will on the
// system status topic lets subscribers notice when the controller drops
// off the broker.
//
// Security Considerations:
//   - Enable TLS (mqtt.broker.tls) outside a trusted LAN; CA and client
//     certificate files are configured under mqtt.tls.
//   - Payloads on garage/control are untrusted; authentication happens in
//     the network adapter, not here.
//
// Usage:
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    logger.Warn("broker unavailable, retrying in background", "error", err)
//	}
//	defer client.Close()
package mqtt
