package bridge

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/comm/mqtt"
)

// MQTTEndpoint serves the bridge on an MQTT broker and announces it.
type MQTTEndpoint struct {
	Bridge    *Bridge
	Registrar *mqtt.Registrar
}

// NewMQTTEndpoint creates an MQTTEndpoint.
func NewMQTTEndpoint(b *Bridge, brokerURL string, info mqtt.BridgeInfo) (*MQTTEndpoint, error) {
	info.ID = b.ID
	reg, err := mqtt.NewRegistrar(brokerURL, info)
	if err != nil {
		return nil, err
	}
	return &MQTTEndpoint{Bridge: b, Registrar: reg}, nil
}

// Run implements Runnable.
func (e *MQTTEndpoint) Run(ctx context.Context) error {
	q := e.Registrar.Queue
	q.Sub(mqtt.CmdTopic(e.Bridge.ID, "+"), func(topic string, payload []byte) {
		session, ok := mqtt.SessionFromCmdTopic(topic)
		if !ok {
			return
		}
		reply, err := e.Bridge.Forward("mqtt", payload)
		if err != nil || len(reply) == 0 {
			return
		}
		if token := q.Pub(mqtt.ReplyTopic(e.Bridge.ID, session), reply); token.Wait() && token.Error() != nil {
			glog.Warningf("reply to %s: %v", session, token.Error())
		}
	})
	return e.Registrar.Run(ctx)
}
